package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"webui/internal/chat"
	"webui/internal/domain/jsoncfg"
)

type chatRequest struct {
	Message      string         `json:"message"`
	History      []chat.Message `json:"history"`
	Token        string         `json:"token"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	MaxTokens    int            `json:"max_tokens"`
	Temperature  *float64       `json:"temperature"`
}

type historyResponse struct {
	History []chat.Message `json:"history"`
}

// Chat runs one conversation turn and returns the updated history.
func (a *App) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<20)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	model := req.Model
	if model == "" {
		model = a.Settings.DefaultTextModel
	}
	system := req.SystemPrompt
	if system == "" {
		system = a.Settings.DefaultSystemPrompt
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = jsoncfg.DefaultChatMaxTokens
	}
	temperature := jsoncfg.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	history := a.Chats.Chat(r.Context(), chat.Request{
		Message:      req.Message,
		History:      req.History,
		Token:        a.token(r.Context(), req.Token),
		Model:        model,
		SystemPrompt: system,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	})
	a.json(w, http.StatusOK, historyResponse{History: history})
}

func (a *App) ClearChat(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, historyResponse{History: a.Chats.Clear()})
}

// Vision describes an uploaded image.
func (a *App) Vision(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart body")
		return
	}
	src, err := formImage(r, "image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image could not be decoded")
		return
	}
	f := form{r: r}
	req := chat.VisionRequest{
		Image:       src,
		Prompt:      f.str("prompt", jsoncfg.DefaultVisionPrompt),
		Token:       a.token(r.Context(), r.FormValue("token")),
		Model:       f.str("model", a.Settings.VisionModel()),
		MaxTokens:   f.num("max_tokens", jsoncfg.DefaultVisionMaxTokens),
		Temperature: f.decimal("temperature", jsoncfg.DefaultTemperature),
	}
	if f.err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", f.err.Error())
		return
	}
	a.json(w, http.StatusOK, map[string]string{"text": a.Chats.Describe(r.Context(), req)})
}
