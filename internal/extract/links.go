package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/mostaql-scraper/internal/document"
	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

const (
	projectRowSelector     = "tr.project-row"
	rowHeadingLinkSelector = "h2 a"
)

// LinkConfig controls how listing hrefs are recognised and made absolute.
type LinkConfig struct {
	Origin            string
	ProjectPathMarker string
}

// LinkExtractor collects project URLs from listing pages.
type LinkExtractor struct {
	fetcher scraper.Fetcher
	cfg     LinkConfig
	logger  *zap.Logger
}

// NewLinkExtractor builds a LinkExtractor. Empty config fields fall back to
// DefaultOrigin and DefaultProjectPathMarker.
func NewLinkExtractor(fetcher scraper.Fetcher, cfg LinkConfig, logger *zap.Logger) *LinkExtractor {
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.ProjectPathMarker == "" {
		cfg.ProjectPathMarker = DefaultProjectPathMarker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LinkExtractor{fetcher: fetcher, cfg: cfg, logger: logger}
}

// ExtractLinks returns at most limit absolute project URLs from pageURL. A
// page that cannot be fetched yields an empty slice.
func (e *LinkExtractor) ExtractLinks(ctx context.Context, pageURL string, limit int) []string {
	if limit <= 0 {
		return []string{}
	}
	body, ok := e.fetcher.Fetch(ctx, pageURL)
	if !ok {
		return []string{}
	}
	doc, err := document.Parse(body)
	if err != nil {
		e.logger.Warn("Failed to parse listing page", zap.String("url", pageURL), zap.Error(err))
		return []string{}
	}

	links := e.fromRows(doc, limit)
	if len(links) == 0 {
		links = e.fromAnchors(doc, limit)
		if len(links) > 0 {
			e.logger.Debug("Used site-wide anchor fallback", zap.String("url", pageURL), zap.Int("links", len(links)))
		}
	}
	return links
}

// fromRows reads one anchor per listing row, preferring the row heading.
func (e *LinkExtractor) fromRows(doc *goquery.Document, limit int) []string {
	links := make([]string, 0, limit)
	doc.Find(projectRowSelector).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		href, ok := e.rowHref(row)
		if !ok {
			return true
		}
		links = append(links, NormalizeHref(e.cfg.Origin, href))
		return len(links) < limit
	})
	return links
}

func (e *LinkExtractor) rowHref(row *goquery.Selection) (string, bool) {
	anchor := row.Find(rowHeadingLinkSelector).First()
	if anchor.Length() == 0 {
		row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if strings.Contains(href, e.cfg.ProjectPathMarker) {
				anchor = a
				return false
			}
			return true
		})
	}
	href, _ := anchor.Attr("href")
	href = strings.TrimSpace(href)
	return href, href != ""
}

// fromAnchors scans every anchor on the page whose href carries the
// project path marker.
func (e *LinkExtractor) fromAnchors(doc *goquery.Document, limit int) []string {
	links := make([]string, 0, limit)
	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if !strings.Contains(href, e.cfg.ProjectPathMarker) {
			return true
		}
		abs := NormalizeHref(e.cfg.Origin, href)
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < limit
	})
	return links
}
