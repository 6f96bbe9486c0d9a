package analyzer

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/sitegrade/models"
)

const (
	readabilityBase = 70
	structureBase   = 60
	citationBase    = 50

	minParagraphWords = 50
	maxParagraphWords = 150
)

var (
	statsPattern      = regexp.MustCompile(`(?i)\d+%|\d+\s*(million|billion|thousand)`)
	faqPattern        = regexp.MustCompile(`(?i)FAQ|frequently asked|common questions`)
	definitionPattern = regexp.MustCompile(`(?i)what is|definition|means|refers to`)
	paragraphBreak    = regexp.MustCompile(`\n\s*\n`)
)

// aiFacts are the snapshot signals the AI-readiness tables read.
type aiFacts struct {
	h1Count        int
	h2Count        int
	hasLists       bool
	avgParagraph   float64
	hasStructured  bool
	hasFAQSchema   bool
	hasQuestions   bool
	hasStats       bool
	hasRecentYear  bool
	hasFAQ         bool
	hasDefinitions bool
}

func newAIFacts(snap *models.PageSnapshot, now time.Time) *aiFacts {
	text := snap.VisibleText
	year := now.Year()
	recent := strings.Contains(text, strconv.Itoa(year)) ||
		strings.Contains(text, strconv.Itoa(year-1))

	return &aiFacts{
		h1Count:        len(snap.Headings.H1),
		h2Count:        len(snap.Headings.H2),
		hasLists:       snap.Lists > 0,
		avgParagraph:   avgParagraphWords(text),
		hasStructured:  len(snap.StructuredData) > 0,
		hasFAQSchema:   snap.HasSchemaType("FAQPage", "HowTo"),
		hasQuestions:   hasQuestions(snap),
		hasStats:       statsPattern.MatchString(text),
		hasRecentYear:  recent,
		hasFAQ:         hasFAQ(snap),
		hasDefinitions: definitionPattern.MatchString(text),
	}
}

var readabilityBonuses = []bonus[aiFacts]{
	{name: "sections", points: 10, when: func(f *aiFacts) bool { return f.h2Count > 3 }},
	{name: "lists", points: 10, when: func(f *aiFacts) bool { return f.hasLists }},
	{name: "paragraphs", points: 10, when: func(f *aiFacts) bool {
		return f.avgParagraph > minParagraphWords && f.avgParagraph < maxParagraphWords
	}},
}

var structureBonuses = []bonus[aiFacts]{
	{name: "hierarchy", points: 15, when: func(f *aiFacts) bool { return f.h1Count == 1 && f.h2Count > 0 }},
	{name: "structured_data", points: 20, when: func(f *aiFacts) bool { return f.hasStructured }},
	{name: "faq_schema", points: 15, when: func(f *aiFacts) bool { return f.hasStructured && f.hasFAQSchema }},
}

var citationBonuses = []bonus[aiFacts]{
	{name: "questions", points: 20, when: func(f *aiFacts) bool { return f.hasQuestions }},
	{name: "statistics", points: 15, when: func(f *aiFacts) bool { return f.hasStats }},
	{name: "recent_dates", points: 15, when: func(f *aiFacts) bool { return f.hasRecentYear }},
}

// aiScores are the three sub-scores, visible to the insight table.
type aiScores struct {
	readability int
	structure   int
	citation    int
}

type insight struct {
	when       func(f *aiFacts, s aiScores) bool
	issue      string
	suggestion string
}

var aiInsights = []insight{
	{
		when:       func(_ *aiFacts, s aiScores) bool { return s.readability < 70 },
		issue:      "Content structure is not optimized for AI parsing",
		suggestion: "Break content into shorter paragraphs with clear headings",
	},
	{
		when:       func(f *aiFacts, _ aiScores) bool { return !f.hasStructured },
		issue:      "No structured data found for AI engines",
		suggestion: "Add FAQ or HowTo schema markup",
	},
	{
		when:       func(_ *aiFacts, s aiScores) bool { return s.citation < 60 },
		issue:      "Low citation potential for AI engines",
		suggestion: "Add Q&A sections and specific data points",
	},
	{
		when:       func(f *aiFacts, _ aiScores) bool { return !f.hasQuestions },
		issue:      "No question-answer format detected",
		suggestion: "Structure content with clear questions and answers",
	},
	{
		when:       func(f *aiFacts, _ aiScores) bool { return !f.hasFAQ },
		issue:      "No FAQ section detected for AI engines",
		suggestion: "Consider adding a FAQ section for better AI visibility",
	},
}

// AIAnalyzer scores how easily answer engines can parse and cite a page.
type AIAnalyzer struct {
	now func() time.Time
}

// NewAIAnalyzer returns an AIAnalyzer that reads the current year from now.
// A nil now uses time.Now.
func NewAIAnalyzer(now func() time.Time) *AIAnalyzer {
	if now == nil {
		now = time.Now
	}
	return &AIAnalyzer{now: now}
}

// Analyze evaluates the bonus and insight tables against snap.
func (a *AIAnalyzer) Analyze(snap *models.PageSnapshot) models.AIReport {
	f := newAIFacts(snap, a.now())

	scores := aiScores{
		readability: applyBonuses(f, readabilityBase, readabilityBonuses),
		structure:   applyBonuses(f, structureBase, structureBonuses),
		citation:    applyBonuses(f, citationBase, citationBonuses),
	}

	issues := []string{}
	suggestions := []string{}
	for _, in := range aiInsights {
		if in.when(f, scores) {
			issues = append(issues, in.issue)
			suggestions = append(suggestions, in.suggestion)
		}
	}

	return models.AIReport{
		Score:             roundMean(scores.readability, scores.structure, scores.citation),
		Readability:       scores.readability,
		Structure:         scores.structure,
		CitationPotential: scores.citation,
		Issues:            issues,
		Suggestions:       suggestions,
		Metrics: map[string]any{
			"hasQuestions":       f.hasQuestions,
			"hasFAQ":             f.hasFAQ,
			"hasStructuredData":  f.hasStructured,
			"avgParagraphLength": math.Round(f.avgParagraph*10) / 10,
			"hasDefinitions":     f.hasDefinitions,
		},
	}
}

func hasQuestions(snap *models.PageSnapshot) bool {
	if strings.Contains(snap.VisibleText, "?") {
		return true
	}
	for _, group := range [][]string{snap.Headings.H2, snap.Headings.H3} {
		for _, h := range group {
			if strings.HasSuffix(strings.TrimSpace(h), "?") {
				return true
			}
		}
	}
	return false
}

func hasFAQ(snap *models.PageSnapshot) bool {
	if faqPattern.MatchString(snap.VisibleText) {
		return true
	}
	for _, h := range snap.Headings.H2 {
		if faqPattern.MatchString(h) {
			return true
		}
	}
	return false
}

// avgParagraphWords splits text on blank lines and returns the mean word
// count of the non-empty paragraphs, or 0 when there are none.
func avgParagraphWords(text string) float64 {
	total, count := 0, 0
	for _, p := range paragraphBreak.Split(text, -1) {
		words := len(strings.Fields(p))
		if words == 0 {
			continue
		}
		total += words
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}
