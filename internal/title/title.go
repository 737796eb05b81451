// Package title implements Title Inference (C8): one LLM call producing a
// short display title for a newly submitted job.
package title

import (
	"context"
	"strings"

	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
)

// maxDisplayChars is the ≤25 display-character bound from spec.md §4.8.
const maxDisplayChars = 25

// Generate issues one LLM call instructed to summarize proposalContent in
// at most 25 display characters. Failure or an empty response falls back
// to the first non-empty line of the proposal, truncated; title generation
// never blocks or fails job creation.
func Generate(ctx context.Context, gateway llm.Gateway, proposalContent string) string {
	if gateway != nil {
		system := "Summarize the following proposal in at most 25 characters. Respond with only the title text, no quotes."
		if text, err := gateway.Complete(ctx, system, proposalContent); err == nil {
			if t := truncateDisplay(strings.TrimSpace(text)); t != "" {
				return t
			}
		}
	}
	return fallback(proposalContent)
}

// fallback picks the first non-empty line of the content and truncates it.
func fallback(proposalContent string) string {
	for _, line := range strings.Split(proposalContent, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return truncateDisplay(line)
		}
	}
	return "Untitled Proposal"
}

func truncateDisplay(s string) string {
	r := []rune(s)
	if len(r) <= maxDisplayChars {
		return s
	}
	return string(r[:maxDisplayChars])
}
