package modelscope

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"webui/internal/domain"
	"webui/internal/infra"
	"webui/internal/metrics"
)

// ErrNoResponse means every attempt of a call failed without a usable
// response. Callers treat it as "no response", never as a crash.
var ErrNoResponse = errors.New("modelscope: no response")

var errRateLimited = errors.New("rate limited")

// Call describes one logical remote call.
type Call struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
	Policy  domain.RetryPolicy
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as trimmed text.
func (r *Response) Text() string {
	return strings.TrimSpace(string(r.Body))
}

// TransientFailure is a failed attempt that may be retried: an HTTP 429, a
// timeout, or any transport error. RetryAfter is set when a 429 carried a
// usable Retry-After header.
type TransientFailure struct {
	StatusCode int
	RetryAfter *time.Duration
	Timeout    bool
	Err        error
}

func (f *TransientFailure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("status %d: %v", f.StatusCode, f.Err)
	}
	return f.Err.Error()
}

func (f *TransientFailure) Unwrap() error { return f.Err }

// Wait returns how long to sleep before the next attempt.
func (f *TransientFailure) Wait(policy domain.RetryPolicy, attempt int) time.Duration {
	if f.RetryAfter != nil {
		return *f.RetryAfter
	}
	return policy.Backoff(attempt)
}

func (f *TransientFailure) reason() string {
	switch {
	case f.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case f.Timeout:
		return "timeout"
	default:
		return "error"
	}
}

// Transport performs calls with bounded retries. Only HTTP 429 and
// transport-level failures are retried; every other status is returned to
// the caller as is.
type Transport struct {
	client  *http.Client
	clock   Clock
	logger  *infra.Logger
	metrics *metrics.Recorder
}

// NewTransport builds a Transport. Nil arguments fall back to defaults.
func NewTransport(client *http.Client, clock Clock, logger *infra.Logger, rec *metrics.Recorder) *Transport {
	if client == nil {
		client = &http.Client{}
	}
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Transport{client: client, clock: clock, logger: logger, metrics: rec}
}

// Do runs call, making at most call.Policy.MaxRetries attempts. It returns
// ErrNoResponse when none of them produced a response.
func (t *Transport) Do(ctx context.Context, call Call) (*Response, error) {
	attempts := call.Policy.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, failure := t.attempt(ctx, call)
		if failure == nil {
			return resp, nil
		}
		last = failure
		if ctx.Err() != nil {
			last = ctx.Err()
			break
		}
		if attempt == attempts-1 {
			break
		}

		wait := failure.Wait(call.Policy, attempt)
		t.metrics.Retry(failure.reason())
		t.logger.Warn().
			Err(failure).
			Str("method", call.Method).
			Str("url", call.URL).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("wait", wait).
			Msg("modelscope: retrying request")
		if err := t.clock.Sleep(ctx, wait); err != nil {
			last = err
			break
		}
	}

	t.logger.Error().
		Err(last).
		Str("method", call.Method).
		Str("url", call.URL).
		Msg("modelscope: request gave no response")
	return nil, fmt.Errorf("%w: %v", ErrNoResponse, last)
}

func (t *Transport) attempt(ctx context.Context, call Call) (*Response, *TransientFailure) {
	attemptCtx := ctx
	if call.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, call.Timeout)
		defer cancel()
	}

	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, call.Method, call.URL, body)
	if err != nil {
		return nil, &TransientFailure{Err: fmt.Errorf("build request: %w", err)}
	}
	for key, values := range call.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransientFailure{Err: err, Timeout: isTimeout(err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientFailure{Err: fmt.Errorf("read body: %w", err), Timeout: isTimeout(err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		failure := &TransientFailure{StatusCode: resp.StatusCode, Err: errRateLimited}
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), t.clock.Now()); ok {
			failure.RetryAfter = &d
		}
		return nil, failure
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
