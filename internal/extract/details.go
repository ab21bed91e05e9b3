package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/mostaql-scraper/internal/document"
	"github.com/JakeFAU/mostaql-scraper/internal/scraper"
)

// MetaPositions maps the fields read from the project meta rows to the row
// index that carries them. This mirrors the current site markup and breaks
// silently if the site reorders its rows.
var MetaPositions = map[string]int{
	scraper.ColumnProjectStatus: 0,
	scraper.ColumnPublishDate:   1,
	scraper.ColumnBudget:        2,
	scraper.ColumnDuration:      3,
}

// DurationMarkers are the Arabic day words used by the late duration
// fallback ("day" and "days").
var DurationMarkers = []string{"يوم", "أيام"}

const (
	metaRowsSelector    = "div.meta-rows > div.meta-row"
	metaRowsFallback    = "div.meta-row"
	metaValueSelector   = ".meta-value"
	budgetRangeSelector = `[data-type="project-budget_range"], div.meta-value[data-type="project-budget_range"]`
	skillItemSelector   = "ul.skills li"
	skillAnchorSelector = "a bdi, a"
	separatorSkills     = ", "
)

// Fields holds the resolver chain for every extracted column.
type Fields struct {
	Title       Chain
	Details     Chain
	Status      Chain
	PublishDate Chain
	Budget      Chain
	Duration    Chain
	Skills      func(doc *goquery.Document) []string
}

// DefaultFields returns the chains matching the project page markup.
func DefaultFields() Fields {
	return Fields{
		Title: Chain{
			SelectorText(`span[data-type="page-header-title"]`),
			SelectorText("h1.heada__title"),
			SelectorText("h1"),
		},
		Details: Chain{
			SelectorText("#projectDetailsTab .carda__content"),
			SelectorText("#projectDetailsTab"),
			SelectorText("div.panel#project-brief, div#project-brief, div.carda__content"),
		},
		Status: Chain{
			MetaValue(MetaPositions[scraper.ColumnProjectStatus]),
		},
		PublishDate: Chain{
			MetaTime(MetaPositions[scraper.ColumnPublishDate]),
			MetaValue(MetaPositions[scraper.ColumnPublishDate]),
		},
		Budget: Chain{
			MetaValue(MetaPositions[scraper.ColumnBudget]),
			SelectorText(budgetRangeSelector),
		},
		Duration: Chain{
			MetaValue(MetaPositions[scraper.ColumnDuration]),
			TextContaining(DurationMarkers...),
		},
		Skills: SkillTags,
	}
}

// MetaRows returns the ordered meta rows of a project page.
func MetaRows(doc *goquery.Document) *goquery.Selection {
	rows := doc.Find(metaRowsSelector)
	if rows.Length() == 0 {
		rows = doc.Find(metaRowsFallback)
	}
	return rows
}

func metaRow(doc *goquery.Document, pos int) (*goquery.Selection, bool) {
	rows := MetaRows(doc)
	if pos < 0 || pos >= rows.Length() {
		return nil, false
	}
	return rows.Eq(pos), true
}

// MetaValue resolves to the non-empty value text of the meta row at pos.
func MetaValue(pos int) Resolver {
	return func(doc *goquery.Document) (string, bool) {
		row, ok := metaRow(doc, pos)
		if !ok {
			return "", false
		}
		text, ok := document.FirstText(row, metaValueSelector)
		return text, ok && text != ""
	}
}

// MetaTime resolves to the datetime attribute of a time element inside the
// meta row at pos.
func MetaTime(pos int) Resolver {
	return func(doc *goquery.Document) (string, bool) {
		row, ok := metaRow(doc, pos)
		if !ok {
			return "", false
		}
		ts, ok := row.Find("time").First().Attr("datetime")
		if !ok {
			return "", false
		}
		return strings.TrimSpace(ts), true
	}
}

// SkillTags returns the distinct skill tags in page order. Items wrapping an
// anchor contribute the anchor text; bare items contribute their own text.
func SkillTags(doc *goquery.Document) []string {
	var tags []string
	seen := make(map[string]struct{})
	add := func(text string) {
		if text == "" {
			return
		}
		if _, dup := seen[text]; dup {
			return
		}
		seen[text] = struct{}{}
		tags = append(tags, text)
	}
	doc.Find(skillItemSelector).Each(func(_ int, li *goquery.Selection) {
		anchors := li.Find(skillAnchorSelector)
		if anchors.Length() == 0 {
			add(document.Text(li))
			return
		}
		anchors.Each(func(_ int, a *goquery.Selection) {
			add(document.Text(a))
		})
	})
	return tags
}

// DetailExtractor builds project records from project pages.
type DetailExtractor struct {
	fetcher scraper.Fetcher
	fields  Fields
	logger  *zap.Logger
}

// NewDetailExtractor builds a DetailExtractor using DefaultFields.
func NewDetailExtractor(fetcher scraper.Fetcher, logger *zap.Logger) *DetailExtractor {
	return NewDetailExtractorWithFields(fetcher, DefaultFields(), logger)
}

// NewDetailExtractorWithFields builds a DetailExtractor with custom chains.
func NewDetailExtractorWithFields(fetcher scraper.Fetcher, fields Fields, logger *zap.Logger) *DetailExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fields.Skills == nil {
		fields.Skills = SkillTags
	}
	return &DetailExtractor{fetcher: fetcher, fields: fields, logger: logger}
}

// ExtractDetails fetches projectURL and resolves every field. It reports
// false only when the page could not be fetched or parsed.
func (e *DetailExtractor) ExtractDetails(ctx context.Context, projectURL string) (scraper.ProjectRecord, bool) {
	body, ok := e.fetcher.Fetch(ctx, projectURL)
	if !ok {
		return scraper.ProjectRecord{}, false
	}
	doc, err := document.Parse(body)
	if err != nil {
		e.logger.Warn("Failed to parse project page", zap.String("url", projectURL), zap.Error(err))
		return scraper.ProjectRecord{}, false
	}
	return e.Extract(doc, projectURL), true
}

// Extract resolves a record from an already parsed project page.
func (e *DetailExtractor) Extract(doc *goquery.Document, projectURL string) scraper.ProjectRecord {
	return scraper.ProjectRecord{
		ProjectName:    e.fields.Title.Resolve(doc),
		ProjectDetails: e.fields.Details.Resolve(doc),
		ProjectStatus:  e.fields.Status.Resolve(doc),
		PublishDate:    e.fields.PublishDate.Resolve(doc),
		Budget:         e.fields.Budget.Resolve(doc),
		Duration:       e.fields.Duration.Resolve(doc),
		Skills:         strings.Join(e.fields.Skills(doc), separatorSkills),
		Link:           projectURL,
	}
}
