package render

import (
	"bytes"
	"fmt"
	stdhtml "html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// HTML converts a Markdown draft to an HTML fragment. Raw HTML in the source is
// escaped, not passed through.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// Page wraps a fragment in a minimal standalone document.
func Page(title, fragment string) string {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	buf.WriteString(stdhtml.EscapeString(title))
	buf.WriteString("</title></head>\n<body>\n")
	buf.WriteString(fragment)
	buf.WriteString("</body></html>\n")
	return buf.String()
}
