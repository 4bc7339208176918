// Package render converts stored stories to HTML.
package render

import (
	"bytes"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.Typographer),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// HTML renders a markdown story body. Raw HTML in the input is omitted.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}

// Page wraps rendered story HTML in a minimal standalone document.
func Page(title, markdown string) (string, error) {
	body, err := HTML(markdown)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(pageTemplate, html.EscapeString(title), html.EscapeString(title), body), nil
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{max-width:48rem;margin:2rem auto;padding:0 1rem;font-family:Georgia,serif;line-height:1.7}</style>
</head>
<body>
<h1>%s</h1>
%s
</body>
</html>
`
