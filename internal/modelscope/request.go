package modelscope

import (
	"image"
	"net/http"
	"strings"

	"webui/internal/domain"
	"webui/internal/imaging"
)

// GenerateParams are the user inputs of the text-to-image workflow.
type GenerateParams struct {
	Token          string
	Model          string
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	Guidance       float64
	Seed           int
}

// EditParams are the user inputs of the image-edit workflow. With Adaptive
// set the output size is derived from the source image and LongEdge;
// otherwise Width and Height are used as given.
type EditParams struct {
	Token          string
	Model          string
	Image          image.Image
	Prompt         string
	NegativePrompt string
	Adaptive       bool
	LongEdge       int
	Width          int
	Height         int
	Steps          int
	Guidance       float64
	Seed           int
}

func requireToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return domain.Wrap(domain.KindMissingCredential, domain.ErrMissingCredential)
	}
	return nil
}

func validSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return &domain.Failure{Kind: domain.KindMissingInput, Detail: domain.FormatSize(w, h), Err: domain.ErrInvalidSize}
	}
	return nil
}

// BuildGenerateRequest validates params and assembles the submission payload.
func BuildGenerateRequest(p GenerateParams) (domain.JobRequest, error) {
	if err := requireToken(p.Token); err != nil {
		return domain.JobRequest{}, err
	}
	if err := validSize(p.Width, p.Height); err != nil {
		return domain.JobRequest{}, err
	}
	return domain.JobRequest{
		Model:          p.Model,
		Prompt:         p.Prompt,
		NegativePrompt: negativePrompt(p.NegativePrompt),
		Size:           domain.FormatSize(p.Width, p.Height),
		Steps:          p.Steps,
		Guidance:       p.Guidance,
		Seed:           p.Seed,
	}, nil
}

// ResolveEditSize checks the edit inputs that must hold before anything is
// uploaded and returns the output size.
func ResolveEditSize(p EditParams) (int, int, error) {
	if err := requireToken(p.Token); err != nil {
		return 0, 0, err
	}
	if p.Image == nil {
		return 0, 0, domain.Wrap(domain.KindMissingInput, domain.ErrMissingInput)
	}
	w, h := p.Width, p.Height
	if p.Adaptive {
		srcW, srcH := imaging.Dimensions(p.Image)
		if srcW <= 0 || srcH <= 0 || p.LongEdge <= 0 {
			return 0, 0, &domain.Failure{Kind: domain.KindMissingInput, Detail: domain.FormatSize(srcW, srcH), Err: domain.ErrInvalidSize}
		}
		w, h = AdaptSize(srcW, srcH, p.LongEdge)
	}
	if err := validSize(w, h); err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// BuildEditRequest assembles the edit payload for an uploaded image.
func BuildEditRequest(p EditParams, width, height int, imageURL string) domain.JobRequest {
	return domain.JobRequest{
		Model:          p.Model,
		Prompt:         p.Prompt,
		NegativePrompt: negativePrompt(p.NegativePrompt),
		ImageURL:       imageURL,
		Size:           domain.FormatSize(width, height),
		Steps:          p.Steps,
		Guidance:       p.Guidance,
		Seed:           p.Seed,
	}
}

// negativePrompt drops a blank negative prompt so it is omitted from the payload.
func negativePrompt(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

func submissionHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	h.Set("Content-Type", "application/json")
	h.Set("X-ModelScope-Async-Mode", "true")
	return h
}

func statusHeaders(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	h.Set("X-ModelScope-Task-Type", "image_generation")
	return h
}
