package stages

import (
	"fmt"
	"strings"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

// Truncate clips s to budget characters, the prompt-truncation rule spec.md
// §4.4 requires for every upstream input so token usage stays bounded. It
// operates on runes, not bytes, so multi-byte text (this pipeline's
// proposals are frequently Korean) is never cut mid-character.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= budget {
		return s
	}
	return string(r[:budget])
}

// SerializeBPCases renders best-practice records compactly for prompt
// inclusion, per spec.md §4.4 ("BP records are serialized compactly").
func SerializeBPCases(cases []domain.BestPracticeRecord) string {
	if len(cases) == 0 {
		return "(no best-practice cases available)"
	}
	var b strings.Builder
	for i, c := range cases {
		fmt.Fprintf(&b, "%d. %s — problem: %s; solution: %s; summary: %s\n",
			i+1, c.Title, c.ProblemAsWas, c.SolutionToBe, c.Summary)
	}
	return b.String()
}

// upstreamText reads a stage's latest text output from the input's
// upstream map, returning "" for missing or non-text entries so a stage
// that depends on an as-yet-unrun upstream degrades gracefully in tests.
func upstreamText(in Input, name string) string {
	out, ok := in.Upstream[name]
	if !ok || out.Kind != domain.StageOutputText {
		return ""
	}
	return out.Text
}

// withFeedback appends the human's HITL feedback to a regeneration prompt,
// or returns base unchanged on a first pass.
func withFeedback(base, feedback string) string {
	if strings.TrimSpace(feedback) == "" {
		return base
	}
	return base + "\n\nHuman feedback to incorporate in this revision: " + feedback
}
