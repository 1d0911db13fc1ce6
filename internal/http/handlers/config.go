package handlers

import (
	"net/http"

	"webui/internal/domain/jsoncfg"
	"webui/internal/i18n"
	"webui/internal/infra"
)

type configResponse struct {
	Settings     jsoncfg.Settings   `json:"settings"`
	Capabilities infra.Capabilities `json:"capabilities"`
	Locale       string             `json:"locale"`
	TokenSaved   bool               `json:"token_saved"`
}

// Config returns the defaults a front end prefills its forms with.
func (a *App) Config(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, configResponse{
		Settings:     a.Settings,
		Capabilities: a.Caps,
		Locale:       i18n.LocaleFromContext(r.Context()).String(),
		TokenSaved:   a.Tokens != nil && a.Tokens.Saved(r.Context()),
	})
}
