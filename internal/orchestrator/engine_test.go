package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/feedback"
	"github.com/ridgeline-labs/review-orchestrator/internal/llm"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
	"github.com/ridgeline-labs/review-orchestrator/internal/progress"
	"github.com/ridgeline-labs/review-orchestrator/internal/retrieval"
	"github.com/ridgeline-labs/review-orchestrator/internal/stages"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// routingLLM is a test Gateway that answers the quality-gate and final
// decision calls with fixed responses (identified by a keyword in the
// system prompt) and serves every other call from a per-stage FIFO queue,
// so a test can reason about "the Nth objective-stage call" without also
// having to count the advisory quality-gate calls interleaved with it.
type routingLLM struct {
	mu     sync.Mutex
	queues map[string][]string // keyed by a keyword found in the stage's system prompt
	calls  map[string]int
}

func newRoutingLLM() *routingLLM {
	return &routingLLM{queues: map[string][]string{}, calls: map[string]int{}}
}

func (r *routingLLM) forStage(keyword string, responses ...string) *routingLLM {
	r.queues[keyword] = append([]string{}, responses...)
	return r
}

func (r *routingLLM) Complete(ctx context.Context, system, user string, opts ...llm.CompleteOption) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case strings.Contains(system, "review the quality"):
		return `{"issues": [], "suggestion": ""}`, nil
	case strings.Contains(system, "classify a proposal review's final decision"):
		return `{"decision": "approved", "reason": "solid"}`, nil
	}

	for keyword, q := range r.queues {
		if strings.Contains(system, keyword) {
			r.calls[keyword]++
			if len(q) == 0 {
				return "fallback text", nil
			}
			next := q[0]
			r.queues[keyword] = q[1:]
			return next, nil
		}
	}
	return "generic response", nil
}

func (r *routingLLM) callCount(keyword string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[keyword]
}

func newRoutingLLMForHappyPath() *routingLLM {
	return newRoutingLLM().
		forStage("goal clarity", "objective text").
		forStage("data feasibility", "data text").
		forStage("risk", "risk text").
		forStage("ROI", "roi text")
}

func newTestEngine(t *testing.T, job *domain.Job, gateway llm.Gateway) (*Engine, *fakeStore, *progress.Observer) {
	t.Helper()
	st := newFakeStore(job)
	hub := progress.NewHub(testLogger(t))
	obs := hub.Subscribe(job.ID)
	e := &Engine{
		Store:            st,
		Inbox:            feedback.New(),
		Hub:              hub,
		LLM:              gateway,
		Retrieval:        &retrieval.Client{}, // zero-value client always errors, so stage 1 falls back to the stub
		Log:              testLogger(t),
		PromptCharBudget: 800,
		RetrievalK:       3,
		HitlAwaitTimeout: 200 * time.Millisecond,
	}
	return e, st, obs
}

// drain collects events from obs until a KindCompleted or KindError event
// arrives, or the timeout elapses.
func drain(t *testing.T, obs *progress.Observer, timeout time.Duration) []progress.Event {
	t.Helper()
	var events []progress.Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-obs.Events:
			events = append(events, ev)
			if ev.Kind == progress.KindCompleted || ev.Kind == progress.KindError {
				return events
			}
		case <-deadline:
			t.Fatalf("timed out waiting for terminal event; got %d events so far: %+v", len(events), events)
		}
	}
}

func countKind(events []progress.Event, kind progress.Kind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// TestRun_SingleSegmentNoHitl_CompletesWithoutInterrupt covers the simplest
// seed scenario from spec.md §8: a job with no hitl_stages runs stage 1
// through stage 6 straight through with no interrupt event, and exactly one
// page_completed followed by one completed.
func TestRun_SingleSegmentNoHitl_CompletesWithoutInterrupt(t *testing.T) {
	job := &domain.Job{
		ID: 1, Domain: "제조", Division: "메모리", ProposalContent: "proposal body",
		Status: domain.StatusPending, LLMDecision: domain.DecisionPending,
	}
	e, st, obs := newTestEngine(t, job, newRoutingLLMForHappyPath())

	e.Submit(1)
	events := drain(t, obs, 2*time.Second)

	if countKind(events, progress.KindInterrupt) != 0 {
		t.Fatalf("expected no interrupts, got events: %+v", events)
	}
	if n := countKind(events, progress.KindPageCompleted); n != 1 {
		t.Fatalf("expected exactly 1 page_completed, got %d", n)
	}
	if n := countKind(events, progress.KindCompleted); n != 1 {
		t.Fatalf("expected exactly 1 completed, got %d", n)
	}

	final, err := st.GetJob(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if final.Status != domain.StatusCompleted {
		t.Fatalf("expected status completed, got %q", final.Status)
	}
	if final.LLMDecision != domain.DecisionApproved {
		t.Fatalf("expected llm_decision approved, got %q", final.LLMDecision)
	}
	if final.Metadata.AgentResults["0"] == nil {
		t.Fatalf("expected agent_results for segment 0")
	}
}

// TestRun_HitlInterruptThenFeedback_Regenerates covers the HITL interrupt +
// feedback + re-execution scenario: stage 2 is a checkpoint, one round of
// feedback is published, and the stage re-runs with that feedback folded
// into the next prompt before the job proceeds (the stage interrupts again
// on the next pass and times out unanswered, which is the documented
// "keep asking until skip or timeout" loop).
func TestRun_HitlInterruptThenFeedback_Regenerates(t *testing.T) {
	job := &domain.Job{
		ID: 2, Domain: "제조", Division: "메모리", ProposalContent: "proposal body",
		Status: domain.StatusPending, LLMDecision: domain.DecisionPending,
		HitlStages: []int{domain.StageObjective},
	}
	gw := newRoutingLLM().
		forStage("goal clarity", "objective v1", "objective v2 (revised)").
		forStage("data feasibility", "data text").
		forStage("risk", "risk text").
		forStage("ROI", "roi text")
	e, st, obs := newTestEngine(t, job, gw)

	e.Submit(2)

	interrupts := 0
	fedback := false
	deadline := time.After(3 * time.Second)
	var events []progress.Event
loop:
	for {
		select {
		case ev := <-obs.Events:
			events = append(events, ev)
			switch ev.Kind {
			case progress.KindInterrupt:
				interrupts++
				if !fedback {
					fedback = true
					e.Inbox.PublishFeedback(2, feedback.Value{Text: "정량 KPI 추가"})
				}
			case progress.KindCompleted, progress.KindError:
				break loop
			}
		case <-deadline:
			t.Fatalf("timed out; events so far: %+v", events)
		}
	}

	if interrupts != 2 {
		t.Fatalf("expected 2 interrupts (one fed back, one timed out), got %d", interrupts)
	}
	if gw.callCount("goal clarity") != 2 {
		t.Fatalf("expected exactly 2 objective-stage calls, got %d", gw.callCount("goal clarity"))
	}

	final, err := st.GetJob(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	got := final.Metadata.AgentResults["0"][stages.NameObjectiveReviewer]
	if got.Text != "objective v2 (revised)" {
		t.Fatalf("expected the regenerated text to persist, got %q", got.Text)
	}
}

// TestRun_HitlSkip_ProceedsWithoutRetry covers the HITL skip path: the
// human explicitly skips on the first interrupt, and the stage is accepted
// with exactly one LLM call.
func TestRun_HitlSkip_ProceedsWithoutRetry(t *testing.T) {
	job := &domain.Job{
		ID: 3, Domain: "제조", Division: "메모리", ProposalContent: "proposal body",
		Status: domain.StatusPending, LLMDecision: domain.DecisionPending,
		HitlStages: []int{domain.StageObjective},
	}
	gw := newRoutingLLMForHappyPath()
	e, _, obs := newTestEngine(t, job, gw)

	e.Submit(3)

	deadline := time.After(2 * time.Second)
	var events []progress.Event
loop:
	for {
		select {
		case ev := <-obs.Events:
			events = append(events, ev)
			switch ev.Kind {
			case progress.KindInterrupt:
				e.Inbox.PublishFeedback(3, feedback.Value{Skip: true})
			case progress.KindCompleted, progress.KindError:
				break loop
			}
		case <-deadline:
			t.Fatalf("timed out; events so far: %+v", events)
		}
	}

	if n := countKind(events, progress.KindInterrupt); n != 1 {
		t.Fatalf("expected exactly 1 interrupt for an immediate skip, got %d", n)
	}
	if gw.callCount("goal clarity") != 1 {
		t.Fatalf("expected exactly 1 objective-stage call, got %d", gw.callCount("goal clarity"))
	}
}

// TestRun_HitlMaxRetriesHonored covers the 3-retries-then-proceed scenario:
// feedback is supplied after every interrupt, but the stage stops
// regenerating once MaxRetries regenerations have been made, i.e. exactly
// MaxRetries+1 calls to the stage's LLM.
func TestRun_HitlMaxRetriesHonored(t *testing.T) {
	job := &domain.Job{
		ID: 4, Domain: "제조", Division: "메모리", ProposalContent: "proposal body",
		Status: domain.StatusPending, LLMDecision: domain.DecisionPending,
		HitlStages: []int{domain.StageObjective},
	}
	gw := newRoutingLLMForHappyPath()
	e, _, obs := newTestEngine(t, job, gw)

	e.Submit(4)

	interrupts := 0
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-obs.Events:
			switch ev.Kind {
			case progress.KindInterrupt:
				interrupts++
				e.Inbox.PublishFeedback(4, feedback.Value{Text: "다시"})
			case progress.KindCompleted, progress.KindError:
				if interrupts != MaxRetries+1 {
					t.Fatalf("expected %d interrupts (initial + %d retries), got %d", MaxRetries+1, MaxRetries, interrupts)
				}
				if gw.callCount("goal clarity") != MaxRetries+1 {
					t.Fatalf("expected %d objective-stage calls, got %d", MaxRetries+1, gw.callCount("goal clarity"))
				}
				return
			}
		case <-deadline:
			t.Fatalf("timed out; saw %d interrupts", interrupts)
		}
	}
}

// TestRun_MultiSegment_EmitsOnePageCompletedPerSegmentAndOneCompleted covers
// the multi-segment fanout scenario: N segments produce exactly N
// page_completed events and exactly one terminal completed event.
func TestRun_MultiSegment_EmitsOnePageCompletedPerSegmentAndOneCompleted(t *testing.T) {
	job := &domain.Job{
		ID: 5, Domain: "제조", Division: "메모리",
		Status: domain.StatusPending, LLMDecision: domain.DecisionPending,
		Segments: []domain.Segment{
			{ID: "seg-a", Title: "A", Body: "segment a body"},
			{ID: "seg-b", Title: "B", Body: "segment b body"},
		},
	}
	e, _, obs := newTestEngine(t, job, newRoutingLLMForHappyPath())

	e.Submit(5)
	events := drain(t, obs, 3*time.Second)

	if n := countKind(events, progress.KindPageCompleted); n != 2 {
		t.Fatalf("expected 2 page_completed events, got %d: %+v", n, events)
	}
	if n := countKind(events, progress.KindCompleted); n != 1 {
		t.Fatalf("expected exactly 1 completed event, got %d", n)
	}
}

// TestRun_RetrievalFailure_StillEmitsBPCasesViaStub covers the
// retrieval-gateway-failure scenario: stage 1 falls back to the fixed stub
// record set and the pipeline proceeds rather than aborting the job.
func TestRun_RetrievalFailure_StillEmitsBPCasesViaStub(t *testing.T) {
	job := &domain.Job{
		ID: 6, Domain: "제조", Division: "메모리", ProposalContent: "proposal body",
		Status: domain.StatusPending, LLMDecision: domain.DecisionPending,
	}
	st := newFakeStore(job)
	hub := progress.NewHub(testLogger(t))
	obsv := hub.Subscribe(6)
	e := &Engine{
		Store:            st,
		Inbox:            feedback.New(),
		Hub:              hub,
		LLM:              newRoutingLLMForHappyPath(),
		Retrieval:        failingRetrieval{},
		Log:              testLogger(t),
		PromptCharBudget: 800,
		RetrievalK:       3,
		HitlAwaitTimeout: 200 * time.Millisecond,
	}

	e.Submit(6)
	events := drain(t, obsv, 2*time.Second)

	var sawBPCases bool
	for _, ev := range events {
		if ev.Kind == progress.KindBPCases {
			sawBPCases = true
			data, ok := ev.Data.(bpCasesData)
			if ok && len(data.Records) == 0 {
				t.Fatalf("expected stub records on retrieval failure, got none")
			}
		}
	}
	if !sawBPCases {
		t.Fatalf("expected a bp_cases event despite retrieval failure")
	}
}

type failingRetrieval struct{}

func (failingRetrieval) Retrieve(_ context.Context, _ retrieval.Query) ([]domain.BestPracticeRecord, error) {
	return nil, errors.New("retrieval gateway unreachable")
}
