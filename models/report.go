package models

import "time"

// SubScore is a bounded [0,100] metric with attached findings.
type SubScore struct {
	Value       int            `json:"value"`
	Issues      []string       `json:"issues"`
	Suggestions []string       `json:"suggestions"`
	Details     map[string]any `json:"details"`
}

// SEOReport is the output of the SEO analyzer.
type SEOReport struct {
	Score     int      `json:"score"`
	Technical SubScore `json:"technical"`
	OnPage    SubScore `json:"onPage"`
}

// AIReport is the output of the AI-readiness analyzer.
type AIReport struct {
	Score             int            `json:"score"`
	Readability       int            `json:"readability"`
	Structure         int            `json:"structure"`
	CitationPotential int            `json:"citationPotential"`
	Issues            []string       `json:"issues"`
	Suggestions       []string       `json:"suggestions"`
	Metrics           map[string]any `json:"metrics"`
}

// AIOptimization is the AI sub-score as reported to callers.
type AIOptimization struct {
	SubScore
	Readability       int `json:"readability"`
	Structure         int `json:"structure"`
	CitationPotential int `json:"citationPotential"`
}

// Scores holds the three headline numbers.
type Scores struct {
	SEO     int `json:"seo"`
	AI      int `json:"ai"`
	Overall int `json:"overall"`
}

// AnalysisResult is the merged, caller-facing result of one analysis.
type AnalysisResult struct {
	ID                 string         `json:"id"`
	URL                string         `json:"url"`
	Timestamp          time.Time      `json:"timestamp"`
	Scores             Scores         `json:"scores"`
	Technical          SubScore       `json:"technical"`
	OnPage             SubScore       `json:"onPage"`
	AIOptimization     AIOptimization `json:"aiOptimization"`
	TopRecommendations []string       `json:"topRecommendations"`
}
