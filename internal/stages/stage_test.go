package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
	"github.com/ridgeline-labs/review-orchestrator/internal/retrieval"
)

func TestOrdered_ReturnsStagesInSpecOrder(t *testing.T) {
	got := Ordered()
	want := []int{domain.StageObjective, domain.StageData, domain.StageRisk, domain.StageROI, domain.StageFinal}
	if len(got) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(got))
	}
	for i, s := range got {
		if s.Number() != want[i] {
			t.Fatalf("stage %d: expected number %d, got %d", i, want[i], s.Number())
		}
	}
}

func TestObjectiveStage_RunReturnsTextOutput(t *testing.T) {
	fake := &llm.Fake{Responses: []string{"the goal is clear and feasible"}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}
	in := Input{
		Segment:     domain.Segment{ID: "seg-1", Title: "설계", Body: "운영 효율 개선 제안"},
		JobDomain:   "제조",
		JobDivision: "메모리",
	}

	out, err := objectiveStage{}.Run(context.Background(), deps, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != domain.StageOutputText || out.Text != "the goal is clear and feasible" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestObjectiveStage_RunPropagatesNonTransientError(t *testing.T) {
	fake := &llm.Fake{Err: &llm.Error{StatusCode: 400, Transient: false, Message: "bad request"}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}

	_, err := objectiveStage{}.Run(context.Background(), deps, Input{})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if len(fake.Calls) != 1 {
		t.Fatalf("expected exactly 1 call for a non-transient error, got %d", len(fake.Calls))
	}
}

func TestObjectiveStage_RunRetriesOnceOnTransientError(t *testing.T) {
	fake := &llm.Fake{
		Err: &llm.Error{StatusCode: 503, Transient: true, Message: "unavailable"},
	}
	deps := Deps{LLM: fake, PromptCharBudget: 800}

	_, err := objectiveStage{}.Run(context.Background(), deps, Input{})
	if err == nil {
		t.Fatalf("expected an error after the retry is also exhausted")
	}
	if len(fake.Calls) != 2 {
		t.Fatalf("expected exactly 2 calls (1 retry) for a transient error, got %d", len(fake.Calls))
	}
}

func TestObjectiveStage_RunIncludesFeedbackOnRegeneration(t *testing.T) {
	fake := &llm.Fake{Responses: []string{"revised"}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}
	in := Input{Segment: domain.Segment{Body: "proposal"}, UserFeedback: "정량 KPI 추가"}

	_, err := objectiveStage{}.Run(context.Background(), deps, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(fake.Calls[0].User, "정량 KPI 추가") {
		t.Fatalf("expected prompt to include human feedback, got %q", fake.Calls[0].User)
	}
}

func TestFinalStage_RunProducesReportAndDecision(t *testing.T) {
	fake := &llm.Fake{Responses: []string{`{"decision": "approved", "reason": "strong ROI"}`}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}
	in := Input{
		Segment: domain.Segment{Title: "설계"},
		Upstream: map[string]domain.StageOutput{
			NameObjectiveReviewer: {Kind: domain.StageOutputText, Text: "objective ok"},
			NameDataReviewer:      {Kind: domain.StageOutputText, Text: "data ok"},
			NameRiskReviewer:      {Kind: domain.StageOutputText, Text: "risk ok"},
			NameROIReviewer:       {Kind: domain.StageOutputText, Text: "roi ok"},
		},
	}

	out, err := finalStage{}.Run(context.Background(), deps, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Kind != domain.StageOutputFinal || out.Final == nil {
		t.Fatalf("expected a final result, got %+v", out)
	}
	if out.Final.LLMDecision != domain.DecisionApproved {
		t.Fatalf("expected approved decision, got %q", out.Final.LLMDecision)
	}
	if !strings.Contains(out.Final.ReportHTML, "objective ok") {
		t.Fatalf("expected report to include upstream text, got %q", out.Final.ReportHTML)
	}
}

func TestFinalStage_DefaultsOnClassificationFailure(t *testing.T) {
	fake := &llm.Fake{Responses: []string{"not valid json"}}
	deps := Deps{LLM: fake, PromptCharBudget: 800}

	out, err := finalStage{}.Run(context.Background(), deps, Input{Segment: domain.Segment{}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Final.LLMDecision != domain.DecisionOnHold {
		t.Fatalf("expected on_hold default, got %q", out.Final.LLMDecision)
	}
	if out.Final.DecisionReason != "자동 판정 실패" {
		t.Fatalf("unexpected default reason: %q", out.Final.DecisionReason)
	}
}

func TestRetrieve_FallsBackToStubOnError(t *testing.T) {
	deps := Deps{Retrieval: errorRetrieval{}, RetrievalK: 5}
	out := Retrieve(context.Background(), deps, domain.Segment{}, "domain", "division")
	if out.Kind != domain.StageOutputBPCases || len(out.Cases) == 0 {
		t.Fatalf("expected stub cases on retrieval failure, got %+v", out)
	}
}

type errorRetrieval struct{}

func (errorRetrieval) Retrieve(ctx context.Context, q retrieval.Query) ([]domain.BestPracticeRecord, error) {
	return nil, errors.New("retrieval gateway unreachable")
}
