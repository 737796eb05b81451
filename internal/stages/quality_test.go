package stages

import (
	"context"
	"strings"
	"testing"

	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
)

func TestAssessQuality_ParsesWellFormedJSON(t *testing.T) {
	fake := &llm.Fake{Responses: []string{`{"issues": ["too vague"], "suggestion": "add numbers"}`}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}

	q := AssessQuality(context.Background(), deps, NameObjectiveReviewer, "some review text")

	if len(q.Issues) != 1 || q.Issues[0] != "too vague" {
		t.Fatalf("unexpected issues: %v", q.Issues)
	}
	if q.Suggestion != "add numbers" {
		t.Fatalf("unexpected suggestion: %q", q.Suggestion)
	}
}

func TestAssessQuality_FallsBackToHeuristicOnLLMError(t *testing.T) {
	fake := &llm.Fake{Err: &llm.Error{Message: "boom"}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}

	short := "too short"
	q := AssessQuality(context.Background(), deps, NameObjectiveReviewer, short)
	if len(q.Issues) != 1 {
		t.Fatalf("expected heuristic fallback to flag short text, got %v", q.Issues)
	}

	long := strings.Repeat("x", 250)
	q = AssessQuality(context.Background(), deps, NameObjectiveReviewer, long)
	if len(q.Issues) != 0 {
		t.Fatalf("expected heuristic fallback to pass long text, got %v", q.Issues)
	}
}

func TestAssessQuality_FallsBackOnMalformedJSON(t *testing.T) {
	fake := &llm.Fake{Responses: []string{"not json at all"}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}

	q := AssessQuality(context.Background(), deps, NameObjectiveReviewer, strings.Repeat("x", 250))
	if len(q.Issues) != 0 {
		t.Fatalf("expected heuristic fallback on malformed response, got %v", q.Issues)
	}
}
