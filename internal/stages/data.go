package stages

import (
	"context"
	"fmt"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

type dataStage struct{}

func (dataStage) Number() int  { return domain.StageData }
func (dataStage) Name() string { return NameDataReviewer }

func (dataStage) Run(ctx context.Context, deps Deps, in Input) (domain.StageOutput, error) {
	system := "You are a reviewer evaluating a proposal's data feasibility: availability, expected quality, and " +
		"accessibility of the data it depends on. Write a clear prose assessment for a decision-maker."
	user := fmt.Sprintf(
		"Proposal (domain=%s, division=%s):\n%s\n\nObjective review so far:\n%s\n\nRelevant best-practice cases:\n%s",
		in.JobDomain, in.JobDivision,
		Truncate(in.Segment.Body, deps.PromptCharBudget),
		Truncate(upstreamText(in, NameObjectiveReviewer), deps.PromptCharBudget),
		SerializeBPCases(in.BPCases),
	)
	user = withFeedback(user, in.UserFeedback)

	text, err := completeWithRetry(ctx, deps.LLM, system, user)
	if err != nil {
		return domain.StageOutput{}, fmt.Errorf("data feasibility review: %w", err)
	}
	return domain.StageOutput{Kind: domain.StageOutputText, Text: text}, nil
}
