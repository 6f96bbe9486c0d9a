// Package analyzer scores a PageSnapshot for search-engine and AI-engine
// readiness and merges both reports into an AnalysisResult.
//
// Every scoring decision lives in a rule table: a condition, a point delta
// and the messages it emits. Tables are evaluated top to bottom, so their
// order is the order of the issues and suggestions in the report.
package analyzer

import "math"

// debit removes points from a sub-score that starts at 100.
type debit[F any] struct {
	name       string
	when       func(f *F) bool
	points     func(f *F) int
	issue      func(f *F) string
	suggestion func(f *F) string

	// floorAfter clamps the running score at 0 right after this rule.
	floorAfter bool
}

// bonus adds points to a sub-score that starts from a base value.
type bonus[F any] struct {
	name   string
	when   func(f *F) bool
	points int
}

// scoreCard collects the outcome of evaluating a debit table.
type scoreCard struct {
	value       int
	issues      []string
	suggestions []string
}

func applyDebits[F any](facts *F, rules []debit[F]) scoreCard {
	card := scoreCard{value: 100, issues: []string{}, suggestions: []string{}}
	for _, r := range rules {
		if !r.when(facts) {
			continue
		}
		if r.points != nil {
			card.value -= r.points(facts)
		}
		if r.issue != nil {
			card.issues = append(card.issues, r.issue(facts))
		}
		if r.suggestion != nil {
			card.suggestions = append(card.suggestions, r.suggestion(facts))
		}
		if r.floorAfter && card.value < 0 {
			card.value = 0
		}
	}
	card.value = clamp(card.value)
	return card
}

func applyBonuses[F any](facts *F, base int, rules []bonus[F]) int {
	score := base
	for _, r := range rules {
		if r.when(facts) {
			score += r.points
		}
	}
	return clamp(score)
}

// clamp bounds a score to [0,100].
func clamp(v int) int {
	return max(0, min(100, v))
}

// roundMean returns the mean of vs rounded half away from zero.
func roundMean(vs ...int) int {
	if len(vs) == 0 {
		return 0
	}
	sum := 0
	for _, v := range vs {
		sum += v
	}
	return int(math.Round(float64(sum) / float64(len(vs))))
}
