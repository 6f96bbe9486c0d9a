// Package extractor turns a rendered document into the normalized
// PageSnapshot consumed by the analyzers.
package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/sitegrade/models"
	"golang.org/x/net/html"
)

// Extract builds a PageSnapshot from a rendered page. It never fails: a
// document that cannot be parsed yields a snapshot with empty fields but
// the page's URL, status and performance telemetry intact.
func Extract(page *models.RenderedPage) *models.PageSnapshot {
	snap := &models.PageSnapshot{
		URL:             page.URL,
		FinalURL:        page.FinalURL,
		FinalStatusCode: page.StatusCode,
		RawHTML:         page.HTML,
		Title:           strings.TrimSpace(page.Title),
		Headings: models.Headings{
			H1: []string{},
			H2: []string{},
			H3: []string{},
		},
		Images: models.ImageStats{List: []models.Image{}},
		Links: models.LinkStats{
			Internal: []string{},
			External: []string{},
		},
		StructuredData: []any{},
		Performance: models.PagePerformance{
			LoadTimeMs:    page.LoadTime.Milliseconds(),
			PageSizeBytes: page.PageSize,
		},
	}

	root, err := html.Parse(strings.NewReader(page.HTML))
	if err != nil {
		snap.VisibleText = page.VisibleText
		return snap
	}
	doc := goquery.NewDocumentFromNode(root)

	// The engine's title is what the document reported after scripts ran.
	if snap.Title == "" {
		snap.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	snap.MetaDescription = metaDescription(doc)
	snap.Headings = models.Headings{
		H1: headingTexts(doc, "h1"),
		H2: headingTexts(doc, "h2"),
		H3: headingTexts(doc, "h3"),
	}
	snap.Images = imageStats(doc)
	snap.Links = extractLinks(doc, snap.EffectiveURL())
	snap.Lists = doc.Find("ul, ol").Length()
	snap.StructuredData = structuredData(root)

	// Prefer the browser's layout-aware innerText; static engines have none.
	if page.VisibleText != "" {
		snap.VisibleText = page.VisibleText
	} else {
		snap.VisibleText = visibleText(root)
	}

	return snap
}

func metaDescription(doc *goquery.Document) string {
	var content string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "description") {
			return true
		}
		content, _ = s.Attr("content")
		return false
	})
	return content
}

func headingTexts(doc *goquery.Document, tag string) []string {
	texts := []string{}
	doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	return texts
}

// imageStats counts every <img>. An image is "without alt" when the
// attribute is absent or set to the empty string.
func imageStats(doc *goquery.Document) models.ImageStats {
	stats := models.ImageStats{List: []models.Image{}}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		alt, _ := s.Attr("alt")
		stats.List = append(stats.List, models.Image{Src: src, Alt: alt})
		if alt == "" {
			stats.WithoutAlt++
		}
	})
	stats.Total = len(stats.List)
	return stats
}
