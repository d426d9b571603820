// Package ai defines the match-scoring contract. The scoring backend is a
// black box to the pipeline: it takes the candidate's experience text and the
// vacancy description and always yields a usable score.
package ai

import "context"

// FallbackExplanation is returned whenever the backend fails or produces an
// unparseable answer.
const FallbackExplanation = "Could not evaluate the match."

// MaxExplanationLen bounds the explanation handed back to callers.
const MaxExplanationLen = 250

// Score is one match assessment.
type Score struct {
	Percent     float64
	Explanation string
}

// Scorer evaluates how well a candidate's experience covers a vacancy
// description. Implementations never return an error: any backend failure
// degrades to the zero-percent fallback.
type Scorer interface {
	Evaluate(ctx context.Context, experience, description string) Score
}

// Fallback is the defined degradation result.
func Fallback() Score {
	return Score{Percent: 0, Explanation: FallbackExplanation}
}
