package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: 2 * time.Second}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, w := range want {
		if got := p.Backoff(attempt); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestPollDeadline(t *testing.T) {
	if got := PollDeadline(10 * time.Second); got != time.Minute {
		t.Fatalf("PollDeadline(10s) = %v, want 1m", got)
	}
	if got := PollDeadline(720 * time.Second); got != 720*time.Second {
		t.Fatalf("PollDeadline(720s) = %v, want 12m", got)
	}
}

func TestJobStatusTerminal(t *testing.T) {
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning, "PROCESSING"} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
	if !JobStatusSucceed.Terminal() || !JobStatusFailed.Terminal() {
		t.Fatalf("SUCCEED and FAILED must be terminal")
	}
}

func TestAsFailure(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", &Failure{Kind: KindSubmissionFailed, Status: 500, Detail: "boom"})
	if got := KindOf(wrapped); got != KindSubmissionFailed {
		t.Fatalf("KindOf = %q, want %q", got, KindSubmissionFailed)
	}
	if got := KindOf(errors.New("plain")); got != KindUnexpected {
		t.Fatalf("KindOf(plain) = %q, want %q", got, KindUnexpected)
	}
	if KindOf(nil) != "" {
		t.Fatalf("KindOf(nil) should be empty")
	}
	f := Wrap(KindMissingInput, ErrInvalidSize)
	if !errors.Is(f, ErrInvalidSize) {
		t.Fatalf("Wrap should keep the cause reachable")
	}
	if got := (&Failure{Kind: KindDownloadFailed, Status: 404}).Error(); got != "download_failed (status 404)" {
		t.Fatalf("Error() = %q", got)
	}
}
