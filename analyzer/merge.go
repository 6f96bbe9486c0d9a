package analyzer

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/sitegrade/models"
)

// MaxRecommendations caps AnalysisResult.TopRecommendations.
const MaxRecommendations = 6

// Recommendation priorities, lowest first.
const (
	priorityCritical = 1
	priorityHigh     = 2
	priorityMedium   = 3
)

var priorityLabels = map[int]string{
	priorityCritical: "Critical: ",
	priorityHigh:     "High: ",
	priorityMedium:   "Medium: ",
}

type recommendation struct {
	priority int
	text     string
}

// Merge combines both reports into the caller-facing result for url.
func Merge(url string, at time.Time, seo models.SEOReport, ai models.AIReport) *models.AnalysisResult {
	aiScore := roundMean(ai.Readability, ai.Structure, ai.CitationPotential)

	return &models.AnalysisResult{
		ID:        uuid.NewString(),
		URL:       url,
		Timestamp: at.UTC(),
		Scores: models.Scores{
			SEO:     seo.Score,
			AI:      aiScore,
			Overall: roundMean(seo.Score, aiScore),
		},
		Technical: seo.Technical,
		OnPage:    seo.OnPage,
		AIOptimization: models.AIOptimization{
			SubScore: models.SubScore{
				Value:       aiScore,
				Issues:      ai.Issues,
				Suggestions: ai.Suggestions,
				Details:     ai.Metrics,
			},
			Readability:       ai.Readability,
			Structure:         ai.Structure,
			CitationPotential: ai.CitationPotential,
		},
		TopRecommendations: topRecommendations(seo, ai),
	}
}

// topRecommendations ranks technical issues first, then AI issues, then the
// SEO suggestions. Ties keep their source order.
func topRecommendations(seo models.SEOReport, ai models.AIReport) []string {
	var recs []recommendation
	for _, issue := range seo.Technical.Issues {
		recs = append(recs, recommendation{priorityCritical, issue})
	}
	for _, issue := range ai.Issues {
		recs = append(recs, recommendation{priorityHigh, issue})
	}
	for _, s := range seo.Technical.Suggestions {
		recs = append(recs, recommendation{priorityMedium, s})
	}
	for _, s := range seo.OnPage.Suggestions {
		recs = append(recs, recommendation{priorityMedium, s})
	}

	slices.SortStableFunc(recs, func(a, b recommendation) int {
		return cmp.Compare(a.priority, b.priority)
	})

	out := make([]string, 0, MaxRecommendations)
	for _, r := range recs {
		if len(out) == MaxRecommendations {
			break
		}
		out = append(out, priorityLabels[r.priority]+r.text)
	}
	return out
}
