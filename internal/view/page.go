package view

import (
	"embed"
	"encoding/json"
	"html/template"
	"io"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("index.html").ParseFS(templateFS, "templates/index.html"))

type pageData struct {
	Model
	// InitialJSON seeds the client script with the server-rendered model.
	InitialJSON template.JS
	// Session tags this page's target updates so the server can order them.
	Session string
}

// WritePage renders the full widget page for m.
func WritePage(w io.Writer, m Model, session string) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return pageTmpl.Execute(w, pageData{Model: m, InitialJSON: template.JS(raw), Session: session})
}
