package modelscope

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"webui/internal/domain"
	"webui/internal/imaging"
	"webui/internal/infra"
	"webui/internal/metrics"
)

// PollInterval is the fixed wait before every status poll.
const PollInterval = 3 * time.Second

// PollState is the poller's view of a job.
type PollState string

const (
	StateSubmitted PollState = "SUBMITTED"
	StatePending   PollState = "PENDING"
	StateRunning   PollState = "RUNNING"
	StateSucceed   PollState = "SUCCEED"
	StateFailed    PollState = "FAILED"
	StateTimedOut  PollState = "TIMED_OUT"
)

// Artifact is the downloaded job result.
type Artifact struct {
	URL    string
	Image  image.Image
	Format string
}

type taskStatusResponse struct {
	TaskStatus   string          `json:"task_status"`
	OutputImages []string        `json:"output_images"`
	Errors       json.RawMessage `json:"errors"`
}

// errorMessage extracts errors.message; a bare string is accepted too.
func (r taskStatusResponse) errorMessage() string {
	if len(r.Errors) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Errors, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	var text string
	if err := json.Unmarshal(r.Errors, &text); err == nil {
		return strings.TrimSpace(text)
	}
	return ""
}

// Poller waits for a submitted job to reach a terminal state.
type Poller struct {
	transport       *Transport
	client          *http.Client
	clock           Clock
	logger          *infra.Logger
	metrics         *metrics.Recorder
	apiBase         string
	deadline        time.Duration
	statusTimeout   time.Duration
	downloadTimeout time.Duration
}

// Wait polls handle until SUCCEED, FAILED or the deadline. On success the
// first output image is downloaded and decoded. Failed polls of any kind are
// treated as "still pending".
func (p *Poller) Wait(ctx context.Context, token string, handle domain.JobHandle) (*Artifact, error) {
	logger := p.logger.With().Str("task_id", handle.TaskID).Logger()
	start := p.clock.Now()
	state := StateSubmitted

	for p.clock.Now().Sub(start) < p.deadline {
		if err := p.clock.Sleep(ctx, PollInterval); err != nil {
			return nil, domain.Wrap(domain.KindUnexpected, err)
		}

		status, ok := p.poll(ctx, token, handle)
		if !ok {
			p.metrics.Poll("unavailable")
			continue
		}
		p.metrics.Poll(pollLabel(status.TaskStatus))

		next := state
		switch domain.JobStatus(status.TaskStatus) {
		case domain.JobStatusSucceed:
			logger.Info().Msg("modelscope: task succeeded")
			if len(status.OutputImages) == 0 || strings.TrimSpace(status.OutputImages[0]) == "" {
				return nil, domain.Fail(domain.KindEmptyResult, "")
			}
			return p.download(ctx, strings.TrimSpace(status.OutputImages[0]))
		case domain.JobStatusFailed:
			msg := status.errorMessage()
			logger.Warn().Str("error", msg).Msg("modelscope: task failed")
			return nil, domain.Fail(domain.KindJobFailed, msg)
		case domain.JobStatusPending:
			next = StatePending
		case domain.JobStatusRunning:
			next = StateRunning
		}
		if next != state {
			logger.Debug().Str("from", string(state)).Str("to", string(next)).Msg("modelscope: task state changed")
			state = next
		}
	}

	logger.Warn().Dur("deadline", p.deadline).Str("state", string(StateTimedOut)).Msg("modelscope: polling deadline reached")
	return nil, domain.Fail(domain.KindPollTimeout, "")
}

// pollLabel bounds the metric label to the known statuses.
func pollLabel(status string) string {
	switch domain.JobStatus(status) {
	case domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusSucceed, domain.JobStatusFailed:
		return status
	}
	return "other"
}

func (p *Poller) poll(ctx context.Context, token string, handle domain.JobHandle) (taskStatusResponse, bool) {
	resp, err := p.transport.Do(ctx, Call{
		Method:  http.MethodGet,
		URL:     p.apiBase + "/tasks/" + handle.TaskID,
		Header:  statusHeaders(token),
		Timeout: p.statusTimeout,
		Policy:  domain.StatusRetryPolicy,
	})
	if err != nil || resp.StatusCode != http.StatusOK {
		return taskStatusResponse{}, false
	}
	var status taskStatusResponse
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		p.logger.Debug().Err(err).Str("task_id", handle.TaskID).Msg("modelscope: undecodable status body")
		return taskStatusResponse{}, false
	}
	return status, true
}

func (p *Poller) download(ctx context.Context, url string) (*Artifact, error) {
	if p.downloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.downloadTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, fmt.Errorf("build download request: %w", err))
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, fmt.Errorf("download image: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.Failure{Kind: domain.KindDownloadFailed, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, fmt.Errorf("read image: %w", err))
	}
	img, format, err := imaging.Decode(data)
	if err != nil {
		return nil, domain.Wrap(domain.KindUnexpected, err)
	}
	return &Artifact{URL: url, Image: img, Format: format}, nil
}
