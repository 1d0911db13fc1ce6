package handlers

import (
	"net/http"

	"webui/internal/embeds"
)

func (a *App) Photopea(w http.ResponseWriter, r *http.Request) {
	a.html(w, embeds.Photopea)
}

func (a *App) Whiteboard(w http.ResponseWriter, r *http.Request) {
	tool := embeds.ParseTool(r.URL.Query().Get("tool"))
	a.html(w, func() ([]byte, error) { return embeds.Whiteboard(tool) })
}

func (a *App) html(w http.ResponseWriter, render func() ([]byte, error)) {
	page, err := render()
	if err != nil {
		a.log().Error().Err(err).Msg("render embed")
		a.error(w, http.StatusInternalServerError, "internal", "embed could not be rendered")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}
