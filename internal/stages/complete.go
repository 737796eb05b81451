package stages

import (
	"context"
	"errors"

	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
)

// completeWithRetry gives a primary stage's LLM call the single in-stage
// retry spec.md §7 grants transient failures; a non-transient failure (or
// a second transient one) propagates to the caller, which the orchestrator
// treats as fatal for the segment.
func completeWithRetry(ctx context.Context, gateway llm.Gateway, system, user string) (string, error) {
	text, err := gateway.Complete(ctx, system, user)
	if err == nil {
		return text, nil
	}
	var apiErr *llm.Error
	if !errors.As(err, &apiErr) || !apiErr.Transient {
		return "", err
	}
	return gateway.Complete(ctx, system, user)
}
