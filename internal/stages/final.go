package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

type finalStage struct{}

func (finalStage) Number() int  { return domain.StageFinal }
func (finalStage) Name() string { return NameFinalGenerator }

func (s finalStage) Run(ctx context.Context, deps Deps, in Input) (domain.StageOutput, error) {
	report := renderAccordionReport(in)

	decision, reason := classifyFinalDecision(ctx, deps, report)

	return domain.StageOutput{
		Kind: domain.StageOutputFinal,
		Final: &domain.FinalStageResult{
			ReportHTML:     report,
			LLMDecision:    decision,
			DecisionReason: reason,
		},
	}, nil
}

// renderAccordionReport builds the summary + per-stage-section HTML report
// spec.md §4.4 (stage 6) describes, independent of the LLM so report
// structure is always deterministic even if the final-decision call fails.
func renderAccordionReport(in Input) string {
	var b strings.Builder
	b.WriteString("<div class=\"review-report\">\n")
	fmt.Fprintf(&b, "  <h2>%s</h2>\n", html.EscapeString(segmentTitle(in.Segment)))

	sections := []struct {
		label string
		name  string
	}{
		{"Objective Review", NameObjectiveReviewer},
		{"Data Feasibility", NameDataReviewer},
		{"Risk Assessment", NameRiskReviewer},
		{"ROI Assessment", NameROIReviewer},
	}
	for _, sec := range sections {
		text := upstreamText(in, sec.name)
		b.WriteString("  <details class=\"review-section\">\n")
		fmt.Fprintf(&b, "    <summary>%s</summary>\n", html.EscapeString(sec.label))
		fmt.Fprintf(&b, "    <p>%s</p>\n", html.EscapeString(text))
		b.WriteString("  </details>\n")
	}
	b.WriteString("</div>\n")
	return b.String()
}

func segmentTitle(seg domain.Segment) string {
	if strings.TrimSpace(seg.Title) != "" {
		return seg.Title
	}
	return "Review Report"
}

// classifyFinalDecision is classify_final_decision (spec.md §4.9): a
// bounded LLM call with a strict output schema, defaulting to
// {on-hold, "자동 판정 실패"} on parse failure.
func classifyFinalDecision(ctx context.Context, deps Deps, report string) (domain.Decision, string) {
	const defaultReason = "자동 판정 실패"

	if deps.LLM == nil {
		return domain.DecisionOnHold, defaultReason
	}

	system := "You classify a proposal review's final decision. Respond with a strict JSON object: " +
		"{\"decision\": \"approved\"|\"on_hold\", \"reason\": string}."
	user := "Review report:\n" + Truncate(stripTags(report), deps.PromptCharBudget*2)

	raw, err := deps.LLM.Complete(ctx, system, user)
	if err != nil {
		return domain.DecisionOnHold, defaultReason
	}

	var parsed struct {
		Decision string `json:"decision"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return domain.DecisionOnHold, defaultReason
	}

	switch domain.Decision(strings.TrimSpace(parsed.Decision)) {
	case domain.DecisionApproved:
		return domain.DecisionApproved, parsed.Reason
	case domain.DecisionOnHold:
		return domain.DecisionOnHold, parsed.Reason
	default:
		return domain.DecisionOnHold, defaultReason
	}
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
