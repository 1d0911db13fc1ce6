package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"webui/internal/i18n"
	"webui/internal/infra/credentials"
)

type tokenStatus struct {
	Saved     bool `json:"saved"`
	Encrypted bool `json:"encrypted"`
}

type tokenSaveRequest struct {
	Token string `json:"token"`
	Save  *bool  `json:"save"`
}

func (a *App) TokenStatus(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, tokenStatus{
		Saved:     a.Tokens.Saved(r.Context()),
		Encrypted: a.Tokens.Encrypted(),
	})
}

// TokenSave stores the token, or deletes the saved one when save is false.
func (a *App) TokenSave(w http.ResponseWriter, r *http.Request) {
	var req tokenSaveRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	save := true
	if req.Save != nil {
		save = *req.Save
	}
	p := i18n.FromContext(r.Context())
	action := a.Tokens.HandleSave(r.Context(), req.Token, save)
	status := http.StatusOK
	var msg string
	switch action {
	case credentials.ActionSaved:
		msg = p.Sprintf(i18n.MsgTokenSaved)
	case credentials.ActionSaveFailed:
		msg = p.Sprintf(i18n.MsgTokenSaveFailed)
		status = http.StatusInternalServerError
	case credentials.ActionDeleted:
		msg = p.Sprintf(i18n.MsgTokenDeleted)
	}
	a.json(w, status, map[string]any{
		"action":  actionName(action),
		"message": msg,
		"saved":   a.Tokens.Saved(r.Context()),
	})
}

func (a *App) TokenDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Tokens.Delete(r.Context()); err != nil {
		a.log().Error().Err(err).Msg("delete token")
		a.error(w, http.StatusInternalServerError, "internal", "token could not be deleted")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"action":  actionName(credentials.ActionDeleted),
		"message": i18n.FromContext(r.Context()).Sprintf(i18n.MsgTokenDeleted),
		"saved":   false,
	})
}

func actionName(action credentials.SaveAction) string {
	switch action {
	case credentials.ActionSaved:
		return "saved"
	case credentials.ActionSaveFailed:
		return "save_failed"
	case credentials.ActionDeleted:
		return "deleted"
	default:
		return "none"
	}
}
