package stages

import (
	"context"
	"fmt"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

type objectiveStage struct{}

func (objectiveStage) Number() int { return domain.StageObjective }
func (objectiveStage) Name() string { return NameObjectiveReviewer }

func (objectiveStage) Run(ctx context.Context, deps Deps, in Input) (domain.StageOutput, error) {
	system := "You are a reviewer evaluating a proposal's goal clarity, strategic alignment, and feasibility. " +
		"Write a clear prose assessment for a decision-maker."
	user := fmt.Sprintf(
		"Proposal (domain=%s, division=%s):\n%s\n\nRelevant best-practice cases:\n%s",
		in.JobDomain, in.JobDivision,
		Truncate(in.Segment.Body, deps.PromptCharBudget),
		SerializeBPCases(in.BPCases),
	)
	user = withFeedback(user, in.UserFeedback)

	text, err := completeWithRetry(ctx, deps.LLM, system, user)
	if err != nil {
		return domain.StageOutput{}, fmt.Errorf("objective review: %w", err)
	}
	return domain.StageOutput{Kind: domain.StageOutputText, Text: text}, nil
}
