// Package orchestrator implements the Review Orchestrator (C7): drives a
// job through its segments and stages, owning HITL gating, the bounded
// retry loop, the metadata merge, and multi-segment fanout (spec.md §4.5).
//
// Each job runs on its own goroutine rather than a poll-and-resume worker
// pool: spec.md §9 wants "suspend until human replies" modeled as a
// one-slot rendezvous with timeout, the orchestrator's cooperative task
// simply awaiting it, with no external event-loop re-entry. A dedicated
// goroutine per job is the direct Go reading of that design note.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/feedback"
	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
	"github.com/ridgeline-labs/review-orchestrator/internal/progress"
	"github.com/ridgeline-labs/review-orchestrator/internal/retrieval"
	"github.com/ridgeline-labs/review-orchestrator/internal/stages"
	"github.com/ridgeline-labs/review-orchestrator/internal/store"
)

// MaxRetries bounds HITL-driven regeneration per stage (spec.md §4.5/§8).
const MaxRetries = 3

// Engine owns the components a job's orchestration depends on: the store
// for durable state, the inbox for HITL rendezvous, the hub for progress
// events, and the gateways stages call through.
type Engine struct {
	Store     store.Store
	Inbox     *feedback.Inbox
	Hub       *progress.Hub
	Bus       progress.Bus // optional; nil in a single-replica deployment
	LLM       llm.Gateway
	Retrieval retrieval.Gateway
	Log       *logger.Logger

	PromptCharBudget int
	RetrievalK       int
	HitlAwaitTimeout time.Duration
}

// Submit launches a job's orchestration on its own goroutine and returns
// immediately. It deliberately does not take the caller's request context:
// an observer disconnecting must not cancel the orchestration (spec.md
// §5, "Cancellation and timeouts").
func (e *Engine) Submit(jobID int64) {
	go e.run(context.Background(), jobID)
}

func (e *Engine) run(ctx context.Context, jobID int64) {
	defer e.Inbox.Close(jobID)

	job, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		e.Log.Error("failed to load job for orchestration", "job_id", jobID, "error", err)
		return
	}

	segments := job.Segments
	if len(segments) == 0 {
		segments = []domain.Segment{{ID: "0", Title: job.Title, Body: job.ProposalContent}}
	}

	var segmentReports []domain.SegmentReport
	var lastDecision domain.Decision
	var lastReason string
	var lastReport string

	for i, seg := range segments {
		if e.isCanceled(ctx, jobID) {
			return
		}

		e.publish(progress.Event{
			JobID: jobID, SegmentID: seg.ID, Kind: progress.KindPageProgress,
			Data: pageProgressData{Current: i + 1, Total: len(segments), Status: "processing", PageTitle: seg.Title},
		})

		report, decision, reason, ok := e.runSegment(ctx, job, seg, i, len(segments))
		if !ok {
			return // fatal stage error or cancellation already handled
		}

		segmentReports = append(segmentReports, domain.SegmentReport{
			Title: seg.Title, ID: seg.ID, Report: report, Decision: decision, Reason: reason,
		})
		lastDecision, lastReason, lastReport = decision, reason, report

		if _, err := e.Store.UpdateJob(ctx, jobID, store.Patch{
			Metadata: &domain.Metadata{SegmentReports: append([]domain.SegmentReport{}, segmentReports...)},
		}); err != nil {
			e.fail(ctx, jobID, seg.ID, fmt.Errorf("persist segment report: %w", err))
			return
		}

		e.publish(progress.Event{
			JobID: jobID, SegmentID: seg.ID, Kind: progress.KindPageCompleted,
			Data: pageCompletedData{
				Current: i + 1, Total: len(segments), PageTitle: seg.Title, PageID: seg.ID,
				PageReport: report, PageDecision: decision, PageDecisionReason: reason,
			},
		})
	}

	decisions := make([]map[string]any, 0, len(segmentReports))
	for _, sr := range segmentReports {
		decisions = append(decisions, map[string]any{
			"id": sr.ID, "title": sr.Title, "decision": sr.Decision, "reason": sr.Reason,
		})
	}

	if _, err := e.Store.UpdateJob(ctx, jobID, store.Patch{
		LLMDecision: &lastDecision,
		Metadata:    &domain.Metadata{FinalDecision: &domain.FinalDecision{Decision: lastDecision, Reason: lastReason}, Report: lastReport},
	}); err != nil {
		e.fail(ctx, jobID, "", fmt.Errorf("persist final decision: %w", err))
		return
	}

	e.publish(progress.Event{
		JobID: jobID, Kind: progress.KindCompleted,
		Data: completedData{Report: lastReport, Decision: lastDecision, DecisionReason: lastReason, Decisions: decisions},
	})
}

// runSegment drives one segment through stage 1 then stages 2-6 (stage 6
// via the same HITL-aware loop as 2-5, since hitl_stages ranges over
// 2..6 inclusive per spec.md §3). Returns ok=false if a fatal stage error
// already terminated the job.
func (e *Engine) runSegment(ctx context.Context, job *domain.Job, seg domain.Segment, index, total int) (report string, decision domain.Decision, reason string, ok bool) {
	jobID := job.ID
	deps := stages.Deps{LLM: e.LLM, Retrieval: e.Retrieval, PromptCharBudget: e.PromptCharBudget, RetrievalK: e.RetrievalK}

	e.publishStageStatus(jobID, seg.ID, stages.NameBPScouter, "processing", "")
	bpOut := stages.Retrieve(ctx, deps, seg, job.Domain, job.Division)
	if _, err := e.persistStageOutput(ctx, jobID, seg.ID, stages.NameBPScouter, bpOut); err != nil {
		e.fail(ctx, jobID, seg.ID, fmt.Errorf("persist bp_cases: %w", err))
		return "", "", "", false
	}
	e.setStatus(ctx, jobID, domain.StatusBPDone)
	e.publishStageStatus(jobID, seg.ID, stages.NameBPScouter, "completed", "")
	e.publish(progress.Event{JobID: jobID, SegmentID: seg.ID, Kind: progress.KindBPCases, Data: bpCasesData{Records: bpOut.Cases}})

	upstream := map[string]domain.StageOutput{stages.NameBPScouter: bpOut}
	isLastSegment := index == total-1

	for _, stg := range stages.Ordered() {
		if e.isCanceled(ctx, jobID) {
			return "", "", "", false
		}

		in := stages.Input{
			Segment: seg, JobDomain: job.Domain, JobDivision: job.Division,
			Upstream: upstream, BPCases: bpOut.Cases,
		}
		out, err := e.stageLoop(ctx, job, seg.ID, stg, deps, in)
		if err != nil {
			e.fail(ctx, jobID, seg.ID, err)
			return "", "", "", false
		}
		upstream[stg.Name()] = out

		if status := statusAfterStage(stg.Number(), isLastSegment); status != "" {
			e.setStatus(ctx, jobID, status)
		}
		if stg.Number() == domain.StageFinal && out.Final != nil {
			report, decision, reason = out.Final.ReportHTML, out.Final.LLMDecision, out.Final.DecisionReason
		}
	}

	return report, decision, reason, true
}

// stageLoop implements stage_loop from spec.md §4.5: run, persist, report
// status; if the stage is a HITL checkpoint, surface an interrupt and
// await feedback, regenerating up to MaxRetries times.
func (e *Engine) stageLoop(ctx context.Context, job *domain.Job, segID string, stg stages.Stage, deps stages.Deps, in stages.Input) (domain.StageOutput, error) {
	jobID := job.ID
	e.Inbox.Reset(jobID)

	attempt := 0
	for {
		e.publishStageStatus(jobID, segID, stg.Name(), "processing", "")
		result, err := stg.Run(ctx, deps, in)
		if err != nil {
			return domain.StageOutput{}, fmt.Errorf("stage %s: %w", stg.Name(), err)
		}
		if _, err := e.persistStageOutput(ctx, jobID, segID, stg.Name(), result); err != nil {
			return domain.StageOutput{}, fmt.Errorf("persist %s: %w", stg.Name(), err)
		}
		e.publishStageStatus(jobID, segID, stg.Name(), "completed", "")

		if !job.HasHitl(stg.Number()) {
			return result, nil
		}

		text := resultText(result)
		quality := stages.AssessQuality(ctx, deps, stg.Name(), text)
		e.publish(progress.Event{
			JobID: jobID, SegmentID: segID, Kind: progress.KindInterrupt,
			Stage: stg.Number(),
			Data: interruptData{
				Agent: stg.Name(), Results: result, FeedbackSuggestion: quality.Suggestion, QualityIssues: quality.Issues,
			},
		})

		fb := e.Inbox.AwaitFeedback(jobID, e.HitlAwaitTimeout)
		if fb.Skip || fb.Text == "" {
			return result, nil
		}
		if attempt >= MaxRetries {
			return result, nil
		}
		attempt++
		in.UserFeedback = fb.Text
	}
}

// statusAfterStage maps a completed stage number to the canonical status
// label of spec.md §4.7. For a multi-segment job the final-synthesis
// stage only reaches the terminal "completed" label on the last segment;
// earlier segments stop advancing at roi_done, since the job as a whole
// is not done yet and the label set is advisory, not authoritative.
func statusAfterStage(stageNumber int, isLastSegment bool) string {
	switch stageNumber {
	case domain.StageObjective:
		return domain.StatusObjectiveDone
	case domain.StageData:
		return domain.StatusDataDone
	case domain.StageRisk:
		return domain.StatusRiskDone
	case domain.StageROI:
		return domain.StatusROIDone
	case domain.StageFinal:
		if isLastSegment {
			return domain.StatusCompleted
		}
		return ""
	default:
		return ""
	}
}

// isCanceled reports whether an admin has canceled the job since the last
// stage boundary (SPEC_FULL.md §7), mirroring the teacher's
// UpdateFieldsUnlessStatus(..., []string{"canceled"}) guard idiom: the
// orchestrator checks rather than locks, so a cancel can land at any
// boundary without the admin write contending with the job's own writes.
func (e *Engine) isCanceled(ctx context.Context, jobID int64) bool {
	job, err := e.Store.GetJob(ctx, jobID)
	if err != nil {
		e.Log.Error("failed to check cancellation", "job_id", jobID, "error", err)
		return false
	}
	return job.Status == domain.StatusCanceled
}

func (e *Engine) setStatus(ctx context.Context, jobID int64, status string) {
	// A cancel that landed while the stage ran must survive until the next
	// boundary check, so an advisory label never overwrites it.
	if e.isCanceled(ctx, jobID) {
		return
	}
	if _, err := e.Store.UpdateJob(ctx, jobID, store.Patch{Status: &status}); err != nil {
		e.Log.Error("failed to update job status", "job_id", jobID, "status", status, "error", err)
	}
}

func resultText(out domain.StageOutput) string {
	if out.Final != nil {
		return out.Final.ReportHTML
	}
	return out.Text
}

func (e *Engine) persistStageOutput(ctx context.Context, jobID int64, segID, name string, out domain.StageOutput) (*domain.Job, error) {
	return e.Store.UpdateJob(ctx, jobID, store.Patch{
		Metadata: &domain.Metadata{
			AgentResults: map[string]map[string]domain.StageOutput{segID: {name: out}},
		},
	})
}

func (e *Engine) publishStageStatus(jobID int64, segID, agent, status, message string) {
	e.publish(progress.Event{
		JobID: jobID, SegmentID: segID, Kind: progress.KindStageStatus,
		Data: stageStatusData{Agent: agent, Status: status, Message: message},
	})
}

func (e *Engine) fail(ctx context.Context, jobID int64, segID string, err error) {
	e.Log.Error("segment failed fatally", "job_id", jobID, "segment_id", segID, "error", err)
	status := domain.StatusError
	if _, uerr := e.Store.UpdateJob(ctx, jobID, store.Patch{Status: &status}); uerr != nil {
		e.Log.Error("failed to persist error status", "job_id", jobID, "error", uerr)
	}
	e.publish(progress.Event{JobID: jobID, SegmentID: segID, Kind: progress.KindError, Message: err.Error()})
}

func (e *Engine) publish(ev Event) {
	e.Hub.Publish(ev)
	if e.Bus != nil {
		_ = e.Bus.Publish(context.Background(), ev)
	}
}

// Event is an alias so this package doesn't need to repeat progress.Event
// everywhere it's constructed inline.
type Event = progress.Event

type pageProgressData struct {
	Current   int    `json:"current"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
	PageTitle string `json:"page_title,omitempty"`
}

type stageStatusData struct {
	Agent   string `json:"agent"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type bpCasesData struct {
	Records []domain.BestPracticeRecord `json:"records"`
}

type interruptData struct {
	Agent              string             `json:"agent"`
	Results            domain.StageOutput `json:"results"`
	FeedbackSuggestion string             `json:"feedback_suggestion,omitempty"`
	QualityIssues      []string           `json:"quality_issues,omitempty"`
}

type pageCompletedData struct {
	Current            int            `json:"current"`
	Total              int            `json:"total"`
	PageTitle          string         `json:"page_title"`
	PageID             string         `json:"page_id"`
	PageReport         string         `json:"page_report"`
	PageDecision       domain.Decision `json:"page_decision"`
	PageDecisionReason string         `json:"page_decision_reason"`
}

type completedData struct {
	Report         string           `json:"report"`
	Decision       domain.Decision  `json:"decision"`
	DecisionReason string           `json:"decision_reason"`
	Decisions      []map[string]any `json:"decisions,omitempty"`
}
