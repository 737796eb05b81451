package stages

import (
	"context"
	"fmt"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

type riskStage struct{}

func (riskStage) Number() int  { return domain.StageRisk }
func (riskStage) Name() string { return NameRiskReviewer }

func (riskStage) Run(ctx context.Context, deps Deps, in Input) (domain.StageOutput, error) {
	system := "You are a reviewer evaluating a proposal's technical, schedule, and personnel risks. " +
		"Write a clear prose assessment for a decision-maker."
	user := fmt.Sprintf(
		"Proposal (domain=%s, division=%s):\n%s\n\nObjective review:\n%s\n\nData feasibility review:\n%s\n\nRelevant best-practice cases:\n%s",
		in.JobDomain, in.JobDivision,
		Truncate(in.Segment.Body, deps.PromptCharBudget),
		Truncate(upstreamText(in, NameObjectiveReviewer), deps.PromptCharBudget),
		Truncate(upstreamText(in, NameDataReviewer), deps.PromptCharBudget),
		SerializeBPCases(in.BPCases),
	)
	user = withFeedback(user, in.UserFeedback)

	text, err := completeWithRetry(ctx, deps.LLM, system, user)
	if err != nil {
		return domain.StageOutput{}, fmt.Errorf("risk review: %w", err)
	}
	return domain.StageOutput{Kind: domain.StageOutputText, Text: text}, nil
}
