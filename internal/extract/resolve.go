package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/mostaql-scraper/internal/document"
)

// Resolver extracts one field value from a document. It reports false when
// the structure it looks for is missing.
type Resolver func(doc *goquery.Document) (string, bool)

// Chain is an ordered list of resolvers for a single field.
type Chain []Resolver

// Resolve returns the value of the first resolver that reports a match, or
// "" when none does.
func (c Chain) Resolve(doc *goquery.Document) string {
	for _, r := range c {
		if v, ok := r(doc); ok {
			return v
		}
	}
	return ""
}

// SelectorText resolves to the text of the first element matching selector.
// A matching element wins even when its text is empty.
func SelectorText(selector string) Resolver {
	return func(doc *goquery.Document) (string, bool) {
		return document.FirstText(doc.Selection, selector)
	}
}

// NonEmpty only reports a match when r yields text.
func NonEmpty(r Resolver) Resolver {
	return func(doc *goquery.Document) (string, bool) {
		v, ok := r(doc)
		return v, ok && v != ""
	}
}

// TextContaining resolves to the first text node containing any marker.
func TextContaining(markers ...string) Resolver {
	return func(doc *goquery.Document) (string, bool) {
		return document.FindText(doc.Selection, func(s string) bool {
			for _, m := range markers {
				if strings.Contains(s, m) {
					return true
				}
			}
			return false
		})
	}
}
