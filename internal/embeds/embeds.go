// Package embeds renders the pages that host third-party editors in iframes.
package embeds

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

const (
	PhotopeaURL   = "https://www.photopea.com/"
	ExcalidrawURL = "https://excalidraw.com/"
	TldrawURL     = "https://www.tldraw.com/"

	PhotopeaHeight   = 768
	WhiteboardHeight = 700

	// photopeaBlankCanvas opens Photopea with a blank white 512x512 PNG.
	photopeaBlankCanvas = "#%7B%22resources%22:%5B%22data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAgAAAAIAAQMAAADOtka5AAAAAXNSR0IB2cksfwAAAAlwSFlzAAALEwAACxMBAJqcGAAAAANQTFRF////p8QbyAAAADZJREFUeJztwQEBAAAAgiD/r25IQAEAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAfBuCAAAB0niJ8AAAAABJRU5ErkJggg==%22%5D%7D"
)

// Tool names a whiteboard.
type Tool string

const (
	ToolExcalidraw Tool = "excalidraw"
	ToolTldraw     Tool = "tldraw"
)

// ParseTool maps a query value to a Tool, defaulting to Excalidraw.
func ParseTool(v string) Tool {
	if strings.EqualFold(strings.TrimSpace(v), string(ToolTldraw)) {
		return ToolTldraw
	}
	return ToolExcalidraw
}

func (t Tool) url() string {
	if t == ToolTldraw {
		return TldrawURL
	}
	return ExcalidrawURL
}

type frame struct {
	Title  string
	ID     string
	Src    template.URL
	Height int
	OnLoad template.JS
	Note   string
}

var page = template.Must(template.New("embed").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>html,body{margin:0;padding:0;background:#fff}iframe{border:0;display:block}</style>
</head>
<body>
<iframe id="{{.ID}}" src="{{.Src}}" width="100%" height="{{.Height}}" allow="clipboard-read; clipboard-write; fullscreen"{{if .OnLoad}} onload="{{.OnLoad}}"{{end}}></iframe>
{{if .Note}}<p>{{.Note}}</p>{{end}}
</body>
</html>
`))

// Photopea renders the Photopea editor page.
func Photopea() ([]byte, error) {
	return render(frame{
		Title:  "Photopea",
		ID:     "webui-photopea-iframe",
		Src:    template.URL(PhotopeaURL + photopeaBlankCanvas),
		Height: PhotopeaHeight,
		OnLoad: "onPhotopeaLoaded(this)",
	})
}

// Whiteboard renders the page for tool.
func Whiteboard(tool Tool) ([]byte, error) {
	title := "Excalidraw"
	if tool == ToolTldraw {
		title = "tldraw"
	}
	return render(frame{
		Title:  title,
		ID:     "webui-whiteboard-iframe",
		Src:    template.URL(tool.url()),
		Height: WhiteboardHeight,
	})
}

func render(f frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := page.Execute(&buf, f); err != nil {
		return nil, fmt.Errorf("embeds: render %s: %w", f.Title, err)
	}
	return buf.Bytes(), nil
}
