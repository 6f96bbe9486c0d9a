package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/use-agent/sitegrade/models"
)

const (
	maxLoadTimeMs      = 3000
	maxPageSizeBytes   = 3 * 1024 * 1024
	maxTitleLength     = 60
	minTitleLength     = 30
	maxMetaLength      = 160
	maxAltDebit        = 15
	altDebitPerImage   = 2
	minInternalLinks   = 3
	minWordCount       = 300
	expectedStatusCode = 200
)

// seoFacts are the snapshot measurements the SEO rules read.
type seoFacts struct {
	https          bool
	loadTimeMs     int64
	pageSizeBytes  int64
	structuredData int
	statusCode     int
	titleLength    int
	metaLength     int
	h1Count        int
	h2Count        int
	totalImages    int
	withoutAlt     int
	internalLinks  int
	externalLinks  int
	wordCount      int
}

func newSEOFacts(snap *models.PageSnapshot) *seoFacts {
	return &seoFacts{
		https:          strings.HasPrefix(strings.ToLower(snap.EffectiveURL()), "https://"),
		loadTimeMs:     snap.Performance.LoadTimeMs,
		pageSizeBytes:  snap.Performance.PageSizeBytes,
		structuredData: len(snap.StructuredData),
		statusCode:     snap.FinalStatusCode,
		titleLength:    utf8.RuneCountInString(snap.Title),
		metaLength:     utf8.RuneCountInString(snap.MetaDescription),
		h1Count:        len(snap.Headings.H1),
		h2Count:        len(snap.Headings.H2),
		totalImages:    snap.Images.Total,
		withoutAlt:     snap.Images.WithoutAlt,
		internalLinks:  len(snap.Links.Internal),
		externalLinks:  len(snap.Links.External),
		wordCount:      len(strings.Fields(snap.VisibleText)),
	}
}

func (f *seoFacts) loadTime() string {
	return fmt.Sprintf("%.2fs", float64(f.loadTimeMs)/1000)
}

func (f *seoFacts) pageSize() string {
	return fmt.Sprintf("%.2fMB", float64(f.pageSizeBytes)/1024/1024)
}

func say(s string) func(*seoFacts) string {
	return func(*seoFacts) string { return s }
}

func minus(n int) func(*seoFacts) int {
	return func(*seoFacts) int { return n }
}

var technicalRules = []debit[seoFacts]{
	{
		name:   "https",
		when:   func(f *seoFacts) bool { return !f.https },
		points: minus(20),
		issue:  say("Website is not using HTTPS"),
	},
	{
		name:   "load_time",
		when:   func(f *seoFacts) bool { return f.loadTimeMs > maxLoadTimeMs },
		points: minus(15),
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("Page load time is %s (should be under 3s)", f.loadTime())
		},
		suggestion: say("Optimize images and enable compression to improve load time"),
	},
	{
		name:   "page_size",
		when:   func(f *seoFacts) bool { return f.pageSizeBytes > maxPageSizeBytes },
		points: minus(10),
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("Page size is %s (should be under 3MB)", f.pageSize())
		},
		suggestion: say("Compress images and minify CSS/JavaScript"),
	},
	{
		name:       "structured_data",
		when:       func(f *seoFacts) bool { return f.structuredData == 0 },
		points:     minus(5),
		suggestion: say("Add structured data (Schema.org) to improve search visibility"),
	},
	{
		name:   "status_code",
		when:   func(f *seoFacts) bool { return f.statusCode != expectedStatusCode },
		points: minus(20),
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("Page returned %d status code", f.statusCode)
		},
	},
}

var onPageRules = []debit[seoFacts]{
	{
		name:   "title_missing",
		when:   func(f *seoFacts) bool { return f.titleLength == 0 },
		points: minus(20),
		issue:  say("Missing page title"),
	},
	{
		name:   "title_long",
		when:   func(f *seoFacts) bool { return f.titleLength > maxTitleLength },
		points: minus(5),
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("Title too long (%d chars, recommended: 50-60)", f.titleLength)
		},
	},
	{
		name:   "title_short",
		when:   func(f *seoFacts) bool { return f.titleLength > 0 && f.titleLength < minTitleLength },
		points: minus(3),
		suggestion: func(f *seoFacts) string {
			return fmt.Sprintf("Title might be too short (%d chars)", f.titleLength)
		},
	},
	{
		name:       "meta_missing",
		when:       func(f *seoFacts) bool { return f.metaLength == 0 },
		points:     minus(15),
		issue:      say("Missing meta description"),
		suggestion: say("Add a compelling meta description (150-160 characters)"),
	},
	{
		name:   "meta_long",
		when:   func(f *seoFacts) bool { return f.metaLength > maxMetaLength },
		points: minus(5),
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("Meta description too long (%d chars)", f.metaLength)
		},
	},
	{
		name:       "h1_missing",
		when:       func(f *seoFacts) bool { return f.h1Count == 0 },
		points:     minus(15),
		issue:      say("No H1 tag found"),
		suggestion: say("Add one clear H1 tag with your main keyword"),
	},
	{
		name:   "h1_multiple",
		when:   func(f *seoFacts) bool { return f.h1Count > 1 },
		points: minus(10),
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("Multiple H1 tags found (%d)", f.h1Count)
		},
	},
	{
		name:       "h2_missing",
		when:       func(f *seoFacts) bool { return f.h2Count == 0 },
		points:     minus(5),
		suggestion: say("Add H2 tags to structure your content"),
	},
	{
		name: "images_alt",
		when: func(f *seoFacts) bool { return f.withoutAlt > 0 },
		points: func(f *seoFacts) int {
			return min(maxAltDebit, f.withoutAlt*altDebitPerImage)
		},
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("%d images missing alt text", f.withoutAlt)
		},
		suggestion: say("Add descriptive alt text to all images"),
		floorAfter: true,
	},
	{
		name:       "internal_links",
		when:       func(f *seoFacts) bool { return f.internalLinks < minInternalLinks },
		points:     minus(5),
		suggestion: say("Add more internal links to improve site navigation"),
	},
	{
		name:   "thin_content",
		when:   func(f *seoFacts) bool { return f.wordCount < minWordCount },
		points: minus(15),
		issue: func(f *seoFacts) string {
			return fmt.Sprintf("Thin content detected (%d words)", f.wordCount)
		},
		suggestion: say("Expand content to at least 500-800 words"),
	},
}

// SEOAnalyzer scores technical health and on-page signals. It holds no
// state and is safe for concurrent use.
type SEOAnalyzer struct{}

// NewSEOAnalyzer returns an SEOAnalyzer.
func NewSEOAnalyzer() *SEOAnalyzer {
	return &SEOAnalyzer{}
}

// Analyze evaluates the technical and on-page rule tables against snap.
func (a *SEOAnalyzer) Analyze(snap *models.PageSnapshot) models.SEOReport {
	f := newSEOFacts(snap)

	technical := applyDebits(f, technicalRules)
	onPage := applyDebits(f, onPageRules)

	report := models.SEOReport{
		Technical: models.SubScore{
			Value:       technical.value,
			Issues:      technical.issues,
			Suggestions: technical.suggestions,
			Details: map[string]any{
				"loadTime":            f.loadTime(),
				"pageSize":            f.pageSize(),
				"structuredDataCount": f.structuredData,
				"statusCode":          f.statusCode,
			},
		},
		OnPage: models.SubScore{
			Value:       onPage.value,
			Issues:      onPage.issues,
			Suggestions: onPage.suggestions,
			Details: map[string]any{
				"titleLength":           f.titleLength,
				"metaDescriptionLength": f.metaLength,
				"h1Count":               f.h1Count,
				"h2Count":               f.h2Count,
				"totalImages":           f.totalImages,
				"imagesWithoutAlt":      f.withoutAlt,
				"internalLinks":         f.internalLinks,
				"externalLinks":         f.externalLinks,
				"wordCount":             f.wordCount,
			},
		},
	}
	report.Score = roundMean(report.Technical.Value, report.OnPage.Value)
	return report
}
