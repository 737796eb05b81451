package stages

import (
	"context"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/retrieval"
)

// Retrieve runs stage 1 (BP Scouter): queries the Retrieval Gateway for up
// to K best-practice records, substituting the fixed stub set on failure
// so the pipeline can proceed degraded (spec.md §4.4, stage 1). Never
// subject to HITL, so it lives outside the Stage interface used by
// stages 2-6.
func Retrieve(ctx context.Context, deps Deps, segment domain.Segment, jobDomain, jobDivision string) domain.StageOutput {
	if deps.Retrieval == nil {
		return domain.StageOutput{Kind: domain.StageOutputBPCases, Cases: retrieval.Stub()}
	}

	records, err := deps.Retrieval.Retrieve(ctx, retrieval.Query{
		Domain:          jobDomain,
		Division:        jobDivision,
		ProposalContent: segment.Body,
		K:               deps.RetrievalK,
	})
	if err != nil || len(records) == 0 {
		return domain.StageOutput{Kind: domain.StageOutputBPCases, Cases: retrieval.Stub()}
	}
	return domain.StageOutput{Kind: domain.StageOutputBPCases, Cases: records}
}
