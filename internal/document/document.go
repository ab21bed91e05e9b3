// Package document parses HTML into a goquery tree and provides the text
// helpers shared by the extractors.
package document

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Parse builds a queryable document from raw markup.
func Parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text joins every descendant text node of sel, each trimmed, with a single
// space. Whitespace-only nodes are dropped.
func Text(sel *goquery.Selection) string {
	if sel == nil {
		return ""
	}
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if s := strings.TrimSpace(n.Data); s != "" {
			*parts = append(*parts, s)
		}
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// FirstText returns the text of the first element matching selector within
// root, and whether such an element exists.
func FirstText(root *goquery.Selection, selector string) (string, bool) {
	sel := root.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	return Text(sel), true
}

// FindText returns the first text node under root whose content satisfies
// match, trimmed.
func FindText(root *goquery.Selection, match func(string) bool) (string, bool) {
	for _, n := range root.Nodes {
		if s, ok := findText(n, match); ok {
			return s, true
		}
	}
	return "", false
}

func findText(n *html.Node, match func(string) bool) (string, bool) {
	if n.Type == html.TextNode {
		if n.Data != "" && match(n.Data) {
			return strings.TrimSpace(n.Data), true
		}
		return "", false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s, ok := findText(c, match); ok {
			return s, true
		}
	}
	return "", false
}
