package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"webui/internal/chat"
	"webui/internal/domain"
	"webui/internal/domain/jsoncfg"
	"webui/internal/i18n"
	"webui/internal/infra/credentials"
	"webui/internal/modelscope"
)

type stubImages struct {
	generate modelscope.GenerateParams
	edit     modelscope.EditParams
	out      modelscope.Outcome
}

func (s *stubImages) Generate(_ context.Context, p modelscope.GenerateParams) modelscope.Outcome {
	s.generate = p
	return s.out
}

func (s *stubImages) Edit(_ context.Context, p modelscope.EditParams) modelscope.Outcome {
	s.edit = p
	return s.out
}

type stubChat struct {
	req    chat.Request
	vision chat.VisionRequest
}

func (s *stubChat) Chat(_ context.Context, req chat.Request) []chat.Message {
	s.req = req
	return append(req.History, chat.Message{Role: chat.RoleUser, Content: req.Message}, chat.Message{Role: chat.RoleAssistant, Content: "pong"})
}

func (s *stubChat) Clear() []chat.Message { return []chat.Message{} }

func (s *stubChat) Describe(_ context.Context, req chat.VisionRequest) string {
	s.vision = req
	return "a red square"
}

type stubTokens struct {
	saved   string
	encrypt bool
	failing bool
}

func (s *stubTokens) Load(context.Context) string { return s.saved }
func (s *stubTokens) Saved(context.Context) bool  { return s.saved != "" }
func (s *stubTokens) Encrypted() bool             { return s.encrypt }

func (s *stubTokens) Delete(context.Context) error {
	s.saved = ""
	return nil
}

func (s *stubTokens) HandleSave(_ context.Context, token string, save bool) credentials.SaveAction {
	switch {
	case save && token != "" && s.failing:
		return credentials.ActionSaveFailed
	case save && token != "":
		s.saved = token
		return credentials.ActionSaved
	case !save && s.saved != "":
		s.saved = ""
		return credentials.ActionDeleted
	}
	return credentials.ActionNone
}

func newTestApp() (*App, *stubImages, *stubChat, *stubTokens) {
	images := &stubImages{}
	chats := &stubChat{}
	tokens := &stubTokens{}
	return &App{
		Settings: jsoncfg.Defaults(),
		Images:   images,
		Chats:    chats,
		Tokens:   tokens,
	}, images, chats, tokens
}

func redSquare(size int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	return img
}

func multipartRequest(t *testing.T, target string, fields map[string]string, img image.Image) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if img != nil {
		part, err := mw.CreateFormFile("image", "in.png")
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		if err := png.Encode(part, img); err != nil {
			t.Fatalf("encode png: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestImagesGenerateAppliesDefaultsAndSavedToken(t *testing.T) {
	app, images, _, tokens := newTestApp()
	tokens.saved = "saved-token"
	images.out = modelscope.Outcome{TaskID: "abc", Image: redSquare(8), Width: 8, Height: 8, Message: "done"}

	req := httptest.NewRequest(http.MethodPost, "/v1/images/generations", strings.NewReader(`{"prompt":"a cat","width":640}`))
	rec := httptest.NewRecorder()
	app.ImagesGenerate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got := images.generate
	if got.Token != "saved-token" {
		t.Fatalf("token = %q, want saved-token", got.Token)
	}
	if got.Prompt != "a cat" || got.Width != 640 || got.Height != 512 {
		t.Fatalf("params = %+v", got)
	}
	if got.Model != jsoncfg.DefaultModel || got.Seed != -1 || got.Steps != 30 {
		t.Fatalf("defaults not applied: %+v", got)
	}
	resp := decode[imageResponse](t, rec)
	if !resp.OK || resp.TaskID != "abc" || !strings.HasPrefix(resp.Image, "data:image/png;base64,") {
		t.Fatalf("response = %+v", resp)
	}
}

func TestImagesGenerateFailureStatus(t *testing.T) {
	cases := []struct {
		kind domain.Kind
		want int
	}{
		{domain.KindMissingCredential, http.StatusUnauthorized},
		{domain.KindMissingInput, http.StatusBadRequest},
		{domain.KindSubmissionFailed, http.StatusBadGateway},
		{domain.KindJobFailed, http.StatusBadGateway},
		{domain.KindPollTimeout, http.StatusGatewayTimeout},
		{domain.KindUnexpected, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		app, images, _, _ := newTestApp()
		images.out = modelscope.Outcome{Message: "nope", Failure: domain.Fail(tc.kind, "")}
		rec := httptest.NewRecorder()
		app.ImagesGenerate(rec, httptest.NewRequest(http.MethodPost, "/v1/images/generations", strings.NewReader(`{}`)))
		if rec.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.kind, rec.Code, tc.want)
		}
		resp := decode[imageResponse](t, rec)
		if resp.OK || resp.Kind != string(tc.kind) || resp.Message != "nope" {
			t.Fatalf("%s: response = %+v", tc.kind, resp)
		}
	}
}

func TestImagesGenerateRejectsBadJSON(t *testing.T) {
	app, _, _, _ := newTestApp()
	rec := httptest.NewRecorder()
	app.ImagesGenerate(rec, httptest.NewRequest(http.MethodPost, "/v1/images/generations", strings.NewReader(`{"width":"wide"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImagesEditParsesForm(t *testing.T) {
	app, images, _, _ := newTestApp()
	images.out = modelscope.Outcome{TaskID: "e1", Image: redSquare(4), Width: 4, Height: 4}
	req := multipartRequest(t, "/v1/images/edits", map[string]string{
		"token":     "tok",
		"prompt":    "make it blue",
		"long_edge": "768",
	}, redSquare(10))
	rec := httptest.NewRecorder()
	app.ImagesEdit(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got := images.edit
	if got.Token != "tok" || got.Prompt != "make it blue" || got.LongEdge != 768 {
		t.Fatalf("params = %+v", got)
	}
	if !got.Adaptive {
		t.Fatalf("adaptive should default to true")
	}
	if got.Model != jsoncfg.DefaultEditModel {
		t.Fatalf("model = %q, want %q", got.Model, jsoncfg.DefaultEditModel)
	}
	if got.Image == nil || got.Image.Bounds().Dx() != 10 {
		t.Fatalf("image not decoded")
	}
}

func TestImagesEditWithoutImagePassesNil(t *testing.T) {
	app, images, _, _ := newTestApp()
	images.out = modelscope.Outcome{Failure: domain.Wrap(domain.KindMissingInput, domain.ErrMissingInput)}
	req := multipartRequest(t, "/v1/images/edits", map[string]string{"token": "tok", "adaptive": "false"}, nil)
	rec := httptest.NewRecorder()
	app.ImagesEdit(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if images.edit.Image != nil || images.edit.Adaptive {
		t.Fatalf("params = %+v", images.edit)
	}
}

func TestImagesEditRejectsBadNumber(t *testing.T) {
	app, _, _, _ := newTestApp()
	req := multipartRequest(t, "/v1/images/edits", map[string]string{"steps": "many"}, nil)
	rec := httptest.NewRecorder()
	app.ImagesEdit(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "steps") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestImageInfo(t *testing.T) {
	app, _, _, _ := newTestApp()
	rec := httptest.NewRecorder()
	app.ImageInfo(rec, multipartRequest(t, "/v1/images/info", nil, redSquare(12)))
	got := decode[map[string]any](t, rec)
	if got["info"] != "Size: 12 × 12 px" {
		t.Fatalf("info = %v", got["info"])
	}

	rec = httptest.NewRecorder()
	req := multipartRequest(t, "/v1/images/info", nil, nil)
	req = req.WithContext(i18n.WithLocale(req.Context(), language.Chinese))
	app.ImageInfo(rec, req)
	got = decode[map[string]any](t, rec)
	if got["info"] != "无图像" {
		t.Fatalf("info = %v, want 无图像", got["info"])
	}
}

func TestChatFillsDefaults(t *testing.T) {
	app, _, chats, _ := newTestApp()
	body := `{"message":"ping","token":"tok","history":[{"role":"user","content":"hi"}]}`
	rec := httptest.NewRecorder()
	app.Chat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if chats.req.Model != jsoncfg.DefaultTextModel || chats.req.MaxTokens != jsoncfg.DefaultChatMaxTokens {
		t.Fatalf("request = %+v", chats.req)
	}
	if chats.req.Temperature != jsoncfg.DefaultTemperature || chats.req.SystemPrompt != jsoncfg.DefaultSystemPrompt {
		t.Fatalf("request = %+v", chats.req)
	}
	resp := decode[historyResponse](t, rec)
	if len(resp.History) != 3 || resp.History[2].Content != "pong" {
		t.Fatalf("history = %+v", resp.History)
	}
}

func TestChatKeepsExplicitZeroTemperature(t *testing.T) {
	app, _, chats, _ := newTestApp()
	rec := httptest.NewRecorder()
	app.Chat(rec, httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"x","temperature":0}`)))
	if chats.req.Temperature != 0 {
		t.Fatalf("temperature = %v, want 0", chats.req.Temperature)
	}
}

func TestClearChat(t *testing.T) {
	app, _, _, _ := newTestApp()
	rec := httptest.NewRecorder()
	app.ClearChat(rec, httptest.NewRequest(http.MethodDelete, "/v1/chat", nil))
	if strings.TrimSpace(rec.Body.String()) != `{"history":[]}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestVisionDefaults(t *testing.T) {
	app, _, chats, tokens := newTestApp()
	tokens.saved = "saved"
	rec := httptest.NewRecorder()
	app.Vision(rec, multipartRequest(t, "/v1/vision", nil, redSquare(6)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	v := chats.vision
	if v.Prompt != jsoncfg.DefaultVisionPrompt || v.MaxTokens != jsoncfg.DefaultVisionMaxTokens {
		t.Fatalf("vision = %+v", v)
	}
	if v.Model != jsoncfg.DefaultVisionModel || v.Token != "saved" || v.Image == nil {
		t.Fatalf("vision = %+v", v)
	}
	if got := decode[map[string]string](t, rec)["text"]; got != "a red square" {
		t.Fatalf("text = %q", got)
	}
}

func TestTokenLifecycle(t *testing.T) {
	app, _, _, tokens := newTestApp()
	tokens.encrypt = true

	rec := httptest.NewRecorder()
	app.TokenSave(rec, httptest.NewRequest(http.MethodPut, "/v1/token", strings.NewReader(`{"token":"abc"}`)))
	got := decode[map[string]any](t, rec)
	if got["action"] != "saved" || got["message"] != i18n.MsgTokenSaved {
		t.Fatalf("save = %v", got)
	}

	rec = httptest.NewRecorder()
	app.TokenStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/token", nil))
	status := decode[tokenStatus](t, rec)
	if !status.Saved || !status.Encrypted {
		t.Fatalf("status = %+v", status)
	}

	rec = httptest.NewRecorder()
	app.TokenSave(rec, httptest.NewRequest(http.MethodPut, "/v1/token", strings.NewReader(`{"token":"abc","save":false}`)))
	if got := decode[map[string]any](t, rec); got["action"] != "deleted" {
		t.Fatalf("unsave = %v", got)
	}
	if tokens.saved != "" {
		t.Fatalf("token still saved")
	}
}

func TestTokenSaveFailure(t *testing.T) {
	app, _, _, tokens := newTestApp()
	tokens.failing = true
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/token", strings.NewReader(`{"token":"abc"}`))
	req = req.WithContext(i18n.WithLocale(req.Context(), language.Chinese))
	app.TokenSave(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decode[map[string]any](t, rec); got["message"] != "❌ API Token保存失败" {
		t.Fatalf("message = %v", got["message"])
	}
}

func TestTokenDelete(t *testing.T) {
	app, _, _, tokens := newTestApp()
	tokens.saved = "abc"
	rec := httptest.NewRecorder()
	app.TokenDelete(rec, httptest.NewRequest(http.MethodDelete, "/v1/token", nil))
	if rec.Code != http.StatusOK || tokens.saved != "" {
		t.Fatalf("status = %d saved = %q", rec.Code, tokens.saved)
	}
}

func TestConfig(t *testing.T) {
	app, _, _, _ := newTestApp()
	app.Caps.EncryptionAvailable = true
	rec := httptest.NewRecorder()
	app.Config(rec, httptest.NewRequest(http.MethodGet, "/v1/config", nil))
	got := decode[configResponse](t, rec)
	if got.Settings.DefaultModel != jsoncfg.DefaultModel || !got.Capabilities.EncryptionAvailable {
		t.Fatalf("config = %+v", got)
	}
	if got.Locale != "en" {
		t.Fatalf("locale = %q, want en", got.Locale)
	}
}

func TestEmbeds(t *testing.T) {
	app, _, _, _ := newTestApp()
	rec := httptest.NewRecorder()
	app.Photopea(rec, httptest.NewRequest(http.MethodGet, "/embed/photopea", nil))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "webui-photopea-iframe") {
		t.Fatalf("photopea page missing iframe")
	}

	rec = httptest.NewRecorder()
	app.Whiteboard(rec, httptest.NewRequest(http.MethodGet, "/embed/whiteboard?tool=tldraw", nil))
	if !strings.Contains(rec.Body.String(), "tldraw.com") {
		t.Fatalf("whiteboard page = %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	app, _, _, _ := newTestApp()
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
