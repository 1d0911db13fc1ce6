package i18n

import (
	"errors"

	"golang.org/x/text/message"

	"webui/internal/domain"
)

// Failure renders f as the status string shown to the user.
func Failure(p *message.Printer, f *domain.Failure) string {
	if f == nil {
		return ""
	}
	detail := f.Detail
	if detail == "" && f.Err != nil {
		detail = f.Err.Error()
	}
	switch f.Kind {
	case domain.KindMissingCredential:
		return p.Sprintf(MsgMissingCredential)
	case domain.KindMissingInput:
		if errors.Is(f.Err, domain.ErrInvalidSize) {
			return p.Sprintf(MsgInvalidSize, f.Detail)
		}
		return p.Sprintf(MsgMissingImage)
	case domain.KindUploadFailed:
		return p.Sprintf(MsgUploadFailed, detail)
	case domain.KindSubmissionFailed:
		if f.Status == 0 {
			return p.Sprintf(MsgNetworkFailure)
		}
		return p.Sprintf(MsgSubmissionFailed, f.Status, f.Detail)
	case domain.KindMalformedResponse:
		return p.Sprintf(MsgMalformedResponse, detail)
	case domain.KindPollTimeout:
		return p.Sprintf(MsgPollTimeout)
	case domain.KindJobFailed:
		if detail == "" {
			detail = p.Sprintf(MsgUnknownError)
		}
		return p.Sprintf(MsgJobFailed, detail)
	case domain.KindEmptyResult:
		return p.Sprintf(MsgEmptyResult)
	case domain.KindDownloadFailed:
		return p.Sprintf(MsgDownloadFailed, f.Status)
	default:
		return p.Sprintf(MsgUnexpected, detail)
	}
}
