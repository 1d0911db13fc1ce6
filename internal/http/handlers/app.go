package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"webui/internal/chat"
	"webui/internal/domain/jsoncfg"
	"webui/internal/infra"
	"webui/internal/infra/credentials"
	"webui/internal/metrics"
	"webui/internal/modelscope"
)

// ImageWorkflows runs the asynchronous image jobs.
type ImageWorkflows interface {
	Generate(ctx context.Context, params modelscope.GenerateParams) modelscope.Outcome
	Edit(ctx context.Context, params modelscope.EditParams) modelscope.Outcome
}

// ChatService answers chat turns and image description requests.
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) []chat.Message
	Clear() []chat.Message
	Describe(ctx context.Context, req chat.VisionRequest) string
}

// TokenStore persists the API token between sessions.
type TokenStore interface {
	Load(ctx context.Context) string
	Saved(ctx context.Context) bool
	Encrypted() bool
	HandleSave(ctx context.Context, token string, save bool) credentials.SaveAction
	Delete(ctx context.Context) error
}

type App struct {
	Settings jsoncfg.Settings
	Caps     infra.Capabilities
	Images   ImageWorkflows
	Chats    ChatService
	Tokens   TokenStore
	Metrics  *metrics.Recorder
	Logger   *infra.Logger
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	a.json(w, status, body)
}

func (a *App) log() *infra.Logger {
	if a.Logger == nil {
		return infra.DiscardLogger()
	}
	return a.Logger
}

// token returns the request's token, or the saved one when it is blank.
func (a *App) token(ctx context.Context, given string) string {
	if t := strings.TrimSpace(given); t != "" {
		return t
	}
	if a.Tokens == nil {
		return ""
	}
	return a.Tokens.Load(ctx)
}
