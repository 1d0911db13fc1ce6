package handlers

import (
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"webui/internal/domain"
	"webui/internal/domain/jsoncfg"
	"webui/internal/i18n"
	"webui/internal/imaging"
	"webui/internal/modelscope"
)

const maxUploadBytes = 32 << 20

type generateRequest struct {
	Token          string  `json:"token"`
	Model          string  `json:"model"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	Guidance       float64 `json:"guidance"`
	Seed           int     `json:"seed"`
}

type imageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	TaskID  string `json:"task_id,omitempty"`
	Image   string `json:"image,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
}

// failureStatus maps a workflow failure onto the HTTP status returned.
func failureStatus(f *domain.Failure) int {
	switch f.Kind {
	case domain.KindMissingCredential:
		return http.StatusUnauthorized
	case domain.KindMissingInput:
		return http.StatusBadRequest
	case domain.KindPollTimeout:
		return http.StatusGatewayTimeout
	case domain.KindUnexpected:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func defaultGenerateRequest(s jsoncfg.Settings) generateRequest {
	return generateRequest{
		Model:          s.DefaultModel,
		Prompt:         s.DefaultPrompt,
		NegativePrompt: s.DefaultNegativePrompt,
		Width:          s.DefaultWidth,
		Height:         s.DefaultHeight,
		Steps:          s.DefaultSteps,
		Guidance:       s.DefaultGuidance,
		Seed:           s.DefaultSeed,
	}
}

// ImagesGenerate runs the text-to-image workflow. Fields omitted from the
// body take the settings defaults.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	req := defaultGenerateRequest(a.Settings)
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	out := a.Images.Generate(r.Context(), modelscope.GenerateParams{
		Token:          a.token(r.Context(), req.Token),
		Model:          req.Model,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		Guidance:       req.Guidance,
		Seed:           req.Seed,
	})
	a.writeOutcome(w, out)
}

// ImagesEdit runs the image-edit workflow from a multipart form.
func (a *App) ImagesEdit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}
	src, err := formImage(r, "image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image could not be decoded")
		return
	}
	s := a.Settings
	f := form{r: r}
	params := modelscope.EditParams{
		Token:          a.token(r.Context(), r.FormValue("token")),
		Model:          f.str("model", s.EditModel()),
		Image:          src,
		Prompt:         f.str("prompt", jsoncfg.DefaultEditPrompt),
		NegativePrompt: r.FormValue("negative_prompt"),
		Adaptive:       f.flag("adaptive", true),
		LongEdge:       f.num("long_edge", jsoncfg.DefaultLongEdge),
		Width:          f.num("width", s.DefaultWidth),
		Height:         f.num("height", s.DefaultHeight),
		Steps:          f.num("steps", s.DefaultSteps),
		Guidance:       f.decimal("guidance", s.DefaultGuidance),
		Seed:           f.num("seed", s.DefaultSeed),
	}
	if f.err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", f.err.Error())
		return
	}
	a.writeOutcome(w, a.Images.Edit(r.Context(), params))
}

// ImageInfo reports the pixel size of an uploaded image.
func (a *App) ImageInfo(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}
	// an undecodable upload is reported like a missing one
	src, _ := formImage(r, "image")
	width, height := imaging.Dimensions(src)
	a.json(w, http.StatusOK, map[string]any{
		"info":   imaging.Info(i18n.FromContext(r.Context()), src),
		"width":  width,
		"height": height,
	})
}

func (a *App) writeOutcome(w http.ResponseWriter, out modelscope.Outcome) {
	resp := imageResponse{Message: out.Message, TaskID: out.TaskID}
	if !out.OK() {
		f := out.Failure
		if f == nil {
			f = domain.Fail(domain.KindEmptyResult, "")
		}
		resp.Kind = string(f.Kind)
		a.json(w, failureStatus(f), resp)
		return
	}
	data, err := imaging.PNGDataURL(out.Image)
	if err != nil {
		a.log().Error().Err(err).Str("task_id", out.TaskID).Msg("encode result image")
		a.error(w, http.StatusInternalServerError, "internal", "result image could not be encoded")
		return
	}
	resp.OK = true
	resp.Image = data
	resp.Width = out.Width
	resp.Height = out.Height
	a.json(w, http.StatusOK, resp)
}

// formImage decodes the named multipart file. A missing file yields nil, nil.
func formImage(r *http.Request, field string) (image.Image, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	img, _, err := imaging.Decode(raw)
	return img, err
}

// form reads typed multipart fields, keeping the first parse error.
type form struct {
	r   *http.Request
	err error
}

func (f *form) raw(key string) (string, bool) {
	v := strings.TrimSpace(f.r.FormValue(key))
	return v, v != ""
}

func (f *form) str(key, fallback string) string {
	if v, ok := f.raw(key); ok {
		return v
	}
	return fallback
}

func (f *form) num(key string, fallback int) int {
	v, ok := f.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f.fail(key)
		return fallback
	}
	return n
}

func (f *form) decimal(key string, fallback float64) float64 {
	v, ok := f.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		f.fail(key)
		return fallback
	}
	return n
}

func (f *form) flag(key string, fallback bool) bool {
	v, ok := f.raw(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		f.fail(key)
		return fallback
	}
	return b
}

func (f *form) fail(key string) {
	if f.err == nil {
		f.err = errors.New("invalid value for " + key)
	}
}
