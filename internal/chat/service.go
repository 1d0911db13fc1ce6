// Package chat talks to the OpenAI-compatible chat completions endpoint for
// multi-turn conversation and image description.
package chat

import (
	"context"
	"errors"
	"image"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"webui/internal/i18n"
	"webui/internal/imaging"
	"webui/internal/infra"
)

// NoticePrefix marks locally generated notices in the history; such entries
// are never sent back to the model.
const NoticePrefix = "系统"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var errEmptyChoices = errors.New("no choices in completion")

// Message is one chat history entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat turn.
type Request struct {
	Message      string
	History      []Message
	Token        string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// VisionRequest asks the model to describe an image.
type VisionRequest struct {
	Image       image.Image
	Prompt      string
	Token       string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Options configures the service.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries int
	// Available comes from the startup capability probe.
	Available bool
	Logger    *infra.Logger
}

// Service performs chat and vision completions.
type Service struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	available  bool
	logger     *infra.Logger
}

// NewService builds a Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Service{
		baseURL:    strings.TrimRight(opts.BaseURL, "/") + "/",
		httpClient: opts.HTTPClient,
		maxRetries: opts.MaxRetries,
		available:  opts.Available,
		logger:     logger,
	}
}

// Available reports whether the chat endpoint can be used.
func (s *Service) Available() bool { return s.available }

func (s *Service) client(token string) openai.Client {
	opts := []option.RequestOption{
		option.WithBaseURL(s.baseURL),
		option.WithAPIKey(strings.TrimSpace(token)),
		option.WithMaxRetries(s.maxRetries),
	}
	if s.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(s.httpClient))
	}
	return openai.NewClient(opts...)
}

// Chat runs one turn and returns the new history. Failures are reported as
// assistant entries, so the returned history is always displayable.
func (s *Service) Chat(ctx context.Context, req Request) []Message {
	p := i18n.FromContext(ctx)
	history := append([]Message(nil), req.History...)

	if !s.available {
		return append(history, Message{Role: RoleAssistant, Content: p.Sprintf(i18n.MsgChatUnavailable)})
	}
	if strings.TrimSpace(req.Token) == "" {
		return append(history, Message{Role: RoleAssistant, Content: p.Sprintf(i18n.MsgMissingCredential)})
	}
	if strings.TrimSpace(req.Message) == "" {
		return history
	}

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.SystemPrompt)}
	for _, m := range history {
		if strings.HasPrefix(m.Content, NoticePrefix) {
			continue
		}
		switch m.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Message))

	reply, err := s.complete(ctx, req.Token, openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(req.Model),
		Messages:    messages,
		MaxTokens:   openai.Opt(int64(req.MaxTokens)),
		Temperature: openai.Opt(req.Temperature),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("model", req.Model).Msg("chat: completion failed")
		return append(history,
			Message{Role: RoleUser, Content: req.Message},
			Message{Role: RoleAssistant, Content: p.Sprintf(i18n.MsgChatFailed, err.Error())},
		)
	}
	return append(history,
		Message{Role: RoleUser, Content: req.Message},
		Message{Role: RoleAssistant, Content: reply},
	)
}

// Clear returns an empty history.
func (s *Service) Clear() []Message { return []Message{} }

// Describe asks the vision model about an image and returns its answer or a
// status string.
func (s *Service) Describe(ctx context.Context, req VisionRequest) string {
	p := i18n.FromContext(ctx)
	if !s.available {
		return p.Sprintf(i18n.MsgChatUnavailable)
	}
	if strings.TrimSpace(req.Token) == "" {
		return p.Sprintf(i18n.MsgMissingCredential)
	}
	if req.Image == nil {
		return p.Sprintf(i18n.MsgMissingImage)
	}

	dataURL, err := imaging.DataURL(req.Image)
	if err != nil {
		return p.Sprintf(i18n.MsgVisionFailed, err.Error())
	}
	reply, err := s.complete(ctx, req.Token, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		MaxTokens:   openai.Opt(int64(req.MaxTokens)),
		Temperature: openai.Opt(req.Temperature),
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("model", req.Model).Msg("chat: vision completion failed")
		return p.Sprintf(i18n.MsgVisionFailed, err.Error())
	}
	if strings.TrimSpace(reply) == "" {
		return p.Sprintf(i18n.MsgVisionEmpty)
	}
	return reply
}

func (s *Service) complete(ctx context.Context, token string, params openai.ChatCompletionNewParams) (string, error) {
	client := s.client(token)
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", errEmptyChoices
	}
	return completion.Choices[0].Message.Content, nil
}
