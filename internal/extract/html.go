// Package extract turns mail bodies, attachments and linked documents into
// plain text and asks a language model for the bill fields inside it.
package extract

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"template": true,
}

// HTMLText returns the visible text of an HTML document, one text run per line.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var lines []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				lines = append(lines, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)

	return strings.Join(lines, "\n"), nil
}

// HTMLString is HTMLText for an in-memory document.
func HTMLString(s string) (string, error) {
	return HTMLText(strings.NewReader(s))
}
