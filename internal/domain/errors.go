package domain

import (
	"errors"
	"fmt"
)

// Kind classifies why a user-facing operation produced no result.
type Kind string

const (
	KindMissingCredential Kind = "missing_credential"
	KindMissingInput      Kind = "missing_input"
	KindUploadFailed      Kind = "upload_failed"
	KindSubmissionFailed  Kind = "submission_failed"
	KindMalformedResponse Kind = "malformed_response"
	KindPollTimeout       Kind = "poll_timeout"
	KindJobFailed         Kind = "job_failed"
	KindEmptyResult       Kind = "empty_result"
	KindDownloadFailed    Kind = "download_failed"
	KindUnexpected        Kind = "unexpected_error"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrMissingInput      = errors.New("missing input")
	ErrInvalidSize       = errors.New("invalid output size")
)

// Failure is the failure half of an operation outcome.
//
// Status holds the remote HTTP status for SubmissionFailed and DownloadFailed;
// zero means no response was received. Detail carries server supplied text.
type Failure struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	msg := string(f.Kind)
	if f.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", f.Status)
	}
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// Fail builds a Failure of the given kind.
func Fail(kind Kind, detail string) *Failure {
	return &Failure{Kind: kind, Detail: detail}
}

// Wrap builds a Failure of the given kind around err.
func Wrap(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

// AsFailure extracts a Failure from err. Errors that carry no Failure are
// reported as unexpected.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return Wrap(KindUnexpected, err)
}

// KindOf returns the failure kind carried by err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return AsFailure(err).Kind
}
