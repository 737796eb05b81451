// Package stages implements the Stage Library (C6): the six review
// stages, sharing one contract per spec.md §9 — "treat the stage as a
// pure function (job_snapshot, upstream, bp) -> (text, quality) plus an
// effects interface provided by the orchestrator". No stage imports
// another stage.
package stages

import (
	"context"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
	"github.com/ridgeline-labs/review-orchestrator/internal/retrieval"
)

// Stage names as written into metadata.agent_results; stable across
// retries and regeneration so invariant I2 ("written at most once per
// segment per attempt") keys cleanly on them.
const (
	NameBPScouter         = "BP_Scouter"
	NameObjectiveReviewer = "Objective_Reviewer"
	NameDataReviewer      = "Data_Reviewer"
	NameRiskReviewer      = "Risk_Reviewer"
	NameROIReviewer       = "ROI_Reviewer"
	NameFinalGenerator    = "Final_Generator"
)

// NameOf returns the metadata key for a stage number, per the naming used
// in the concrete seed scenarios.
func NameOf(stageNumber int) string {
	switch stageNumber {
	case domain.StageRetrieval:
		return NameBPScouter
	case domain.StageObjective:
		return NameObjectiveReviewer
	case domain.StageData:
		return NameDataReviewer
	case domain.StageRisk:
		return NameRiskReviewer
	case domain.StageROI:
		return NameROIReviewer
	case domain.StageFinal:
		return NameFinalGenerator
	default:
		return ""
	}
}

// Deps is the effects interface every stage is handed; stages never reach
// out to a global client, only what the orchestrator provides.
type Deps struct {
	LLM              llm.Gateway
	Retrieval        retrieval.Gateway
	PromptCharBudget int
	RetrievalK       int
}

// Input is the read-only view of job state a stage needs: the segment
// under review, the job's domain/division tags, the latest upstream
// results keyed by stage name, the best-practice cases from stage 1, and
// (on a HITL regeneration pass) the human feedback to incorporate.
type Input struct {
	Segment      domain.Segment
	JobDomain    string
	JobDivision  string
	Upstream     map[string]domain.StageOutput
	BPCases      []domain.BestPracticeRecord
	UserFeedback string
}

// Stage is the shared contract for stages 2-6; stage 1 (retrieval) is
// handled separately since its output shape and HITL-exemption differ
// enough that forcing it through the same Run signature would cost more
// than it saves (see Retrieve in retrieval_stage.go).
type Stage interface {
	Number() int
	Name() string
	Run(ctx context.Context, deps Deps, in Input) (domain.StageOutput, error)
}

// Ordered returns stages 2-6 in execution order.
func Ordered() []Stage {
	return []Stage{
		objectiveStage{},
		dataStage{},
		riskStage{},
		roiStage{},
		finalStage{},
	}
}
