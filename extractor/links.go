package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/sitegrade/models"
)

// extractLinks resolves every a[href] against pageURL and splits the
// results by hostname. Both lists are deduplicated by resolved URL and keep
// first-seen order. Non-web schemes (mailto:, javascript:, tel:) are skipped.
func extractLinks(doc *goquery.Document, pageURL string) models.LinkStats {
	stats := models.LinkStats{
		Internal: []string{},
		External: []string{},
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return stats
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}

		if strings.EqualFold(resolved.Hostname(), base.Hostname()) {
			stats.Internal = append(stats.Internal, abs)
		} else {
			stats.External = append(stats.External, abs)
		}
	})

	stats.Total = len(stats.Internal) + len(stats.External)
	return stats
}
