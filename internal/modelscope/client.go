// Package modelscope drives the asynchronous image job workflow of the
// ModelScope inference API: submit, poll, download.
package modelscope

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"webui/internal/domain"
	"webui/internal/domain/jsoncfg"
	"webui/internal/i18n"
	"webui/internal/infra"
	"webui/internal/metrics"
)

// Options configures the client.
type Options struct {
	APIBase    string
	UploadURL  string
	Settings   jsoncfg.Settings
	HTTPClient *http.Client
	Clock      Clock
	TempDir    string
	Logger     *infra.Logger
	Metrics    *metrics.Recorder
}

// Client runs the generate and edit workflows.
type Client struct {
	apiBase  string
	settings jsoncfg.Settings
	clock    Clock
	logger   *infra.Logger
	metrics  *metrics.Recorder

	transport *Transport
	poller    *Poller
	uploader  *Uploader
}

// Outcome is the result of a workflow: an image or a failure, plus the
// status string to show the user.
type Outcome struct {
	TaskID  string
	Image   image.Image
	Width   int
	Height  int
	Message string
	Failure *domain.Failure
}

// OK reports whether the workflow produced an image.
func (o Outcome) OK() bool { return o.Failure == nil && o.Image != nil }

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// NewClient constructs a client with defaults for every unset option.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = infra.DefaultAPIBaseURL
	}
	uploadURL := strings.TrimSpace(opts.UploadURL)
	if uploadURL == "" {
		uploadURL = infra.DefaultUploadURL
	}
	settings := opts.Settings
	settings.Normalize()

	transport := NewTransport(httpClient, clock, logger, opts.Metrics)
	return &Client{
		apiBase:   apiBase,
		settings:  settings,
		clock:     clock,
		logger:    logger,
		metrics:   opts.Metrics,
		transport: transport,
		poller: &Poller{
			transport:       transport,
			client:          httpClient,
			clock:           clock,
			logger:          logger,
			metrics:         opts.Metrics,
			apiBase:         apiBase,
			deadline:        domain.PollDeadline(settings.RequestTimeout()),
			statusTimeout:   settings.StatusRequestTimeout(),
			downloadTimeout: settings.DownloadTimeout(),
		},
		uploader: &Uploader{
			url:     uploadURL,
			client:  httpClient,
			tempDir: opts.TempDir,
			timeout: settings.RequestTimeout(),
			logger:  logger,
		},
	}
}

// Settings returns the normalized settings the client runs with.
func (c *Client) Settings() jsoncfg.Settings { return c.settings }

// Generate runs the text-to-image workflow.
func (c *Client) Generate(ctx context.Context, params GenerateParams) (out Outcome) {
	start := c.clock.Now()
	defer c.complete(ctx, "generate", start, &out)

	req, err := BuildGenerateRequest(params)
	if err != nil {
		return Outcome{Failure: domain.AsFailure(err)}
	}
	handle, err := c.submit(ctx, params.Token, req)
	if err != nil {
		return Outcome{Failure: domain.AsFailure(err)}
	}
	artifact, err := c.poller.Wait(ctx, params.Token, handle)
	if err != nil {
		return Outcome{TaskID: handle.TaskID, Failure: domain.AsFailure(err)}
	}
	return Outcome{TaskID: handle.TaskID, Image: artifact.Image, Width: params.Width, Height: params.Height}
}

// Edit runs the image-edit workflow: size resolution, upload, submit, poll.
func (c *Client) Edit(ctx context.Context, params EditParams) (out Outcome) {
	start := c.clock.Now()
	defer c.complete(ctx, "edit", start, &out)

	width, height, err := ResolveEditSize(params)
	if err != nil {
		return Outcome{Failure: domain.AsFailure(err)}
	}
	imageURL, err := c.uploader.Upload(ctx, params.Image)
	if err != nil {
		return Outcome{Failure: domain.AsFailure(err)}
	}
	handle, err := c.submit(ctx, params.Token, BuildEditRequest(params, width, height, imageURL))
	if err != nil {
		return Outcome{Failure: domain.AsFailure(err)}
	}
	artifact, err := c.poller.Wait(ctx, params.Token, handle)
	if err != nil {
		return Outcome{TaskID: handle.TaskID, Failure: domain.AsFailure(err)}
	}
	return Outcome{TaskID: handle.TaskID, Image: artifact.Image, Width: width, Height: height}
}

func (c *Client) submit(ctx context.Context, token string, req domain.JobRequest) (domain.JobHandle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.JobHandle{}, domain.Wrap(domain.KindUnexpected, fmt.Errorf("encode request: %w", err))
	}
	resp, err := c.transport.Do(ctx, Call{
		Method:  http.MethodPost,
		URL:     c.apiBase + "/images/generations",
		Header:  submissionHeaders(token),
		Body:    body,
		Timeout: c.settings.RequestTimeout(),
		Policy:  domain.SubmitRetryPolicy,
	})
	if err != nil {
		return domain.JobHandle{}, domain.Wrap(domain.KindSubmissionFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.JobHandle{}, &domain.Failure{Kind: domain.KindSubmissionFailed, Status: resp.StatusCode, Detail: resp.Text()}
	}
	var decoded submitResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil || strings.TrimSpace(decoded.TaskID) == "" {
		return domain.JobHandle{}, &domain.Failure{Kind: domain.KindMalformedResponse, Detail: resp.Text(), Err: err}
	}
	c.logger.Info().Str("task_id", decoded.TaskID).Str("model", req.Model).Str("size", req.Size).Msg("modelscope: task submitted")
	return domain.JobHandle{TaskID: decoded.TaskID, SubmittedAt: c.clock.Now()}, nil
}

// complete runs deferred at the end of every workflow. It turns a panic into
// an UnexpectedError outcome, renders the status string and records metrics.
func (c *Client) complete(ctx context.Context, workflow string, start time.Time, out *Outcome) {
	if r := recover(); r != nil {
		c.logger.Error().Str("workflow", workflow).Interface("panic", r).Msg("modelscope: workflow panicked")
		*out = Outcome{Failure: domain.Wrap(domain.KindUnexpected, fmt.Errorf("%v", r))}
	}

	p := i18n.FromContext(ctx)
	label := "ok"
	switch {
	case out.Failure != nil:
		label = string(out.Failure.Kind)
		out.Message = i18n.Failure(p, out.Failure)
		c.logger.Warn().Str("workflow", workflow).Str("task_id", out.TaskID).Str("kind", label).Err(out.Failure).Msg("modelscope: workflow failed")
	case workflow == "edit":
		out.Message = p.Sprintf(i18n.MsgEdited, out.TaskID, domain.FormatSize(out.Width, out.Height))
	default:
		out.Message = p.Sprintf(i18n.MsgGenerated, out.TaskID)
	}
	c.metrics.JobFinished(workflow, label, c.clock.Now().Sub(start))
}
