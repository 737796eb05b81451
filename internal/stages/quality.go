package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

// minAcceptableLength is the heuristic-fallback length threshold from
// spec.md §4.6.
const minAcceptableLength = 200

// AssessQuality is the secondary, advisory LLM call of spec.md §4.6. It
// never blocks the pipeline: a failure or malformed response falls back to
// a length heuristic rather than propagating an error.
func AssessQuality(ctx context.Context, deps Deps, stageName, text string) *domain.QualityAssessment {
	system := "You review the quality of one stage of an automated proposal review. " +
		"Respond with a strict JSON object: {\"issues\": [string], \"suggestion\": string}."
	user := fmt.Sprintf("Stage: %s\n\nText under review:\n%s", stageName, Truncate(text, deps.PromptCharBudget))

	if deps.LLM == nil {
		return heuristicQuality(text)
	}
	raw, err := deps.LLM.Complete(ctx, system, user)
	if err != nil {
		return heuristicQuality(text)
	}

	var parsed struct {
		Issues     []string `json:"issues"`
		Suggestion string   `json:"suggestion"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return heuristicQuality(text)
	}
	return &domain.QualityAssessment{Issues: parsed.Issues, Suggestion: parsed.Suggestion}
}

func heuristicQuality(text string) *domain.QualityAssessment {
	if len([]rune(text)) >= minAcceptableLength {
		return &domain.QualityAssessment{Issues: []string{}}
	}
	return &domain.QualityAssessment{
		Issues:     []string{"result is shorter than expected; consider asking for more detail"},
		Suggestion: "Ask the reviewer to elaborate with specifics (numbers, names, dates).",
	}
}

// extractJSONObject trims any leading/trailing prose a non-strict model
// might wrap the JSON object in, taking the outermost {...} span.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
