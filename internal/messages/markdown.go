package messages

import (
	"bytes"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// Message bodies are user input: raw HTML stays disabled (no WithUnsafe).
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		goldmarkhtml.WithHardWraps(),
		goldmarkhtml.WithXHTML(),
	),
)

// RenderBody converts a markdown body to HTML. On failure the body is
// returned HTML-escaped inside a paragraph.
func RenderBody(body string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(body), &buf); err != nil {
		buf.Reset()
		buf.WriteString("<p>")
		buf.WriteString(html.EscapeString(body))
		buf.WriteString("</p>")
	}
	return buf.String()
}
