package progress

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
)

// observerBuffer is the depth of an observer's outbound channel. A slow or
// vanished SSE client must never block the orchestrator goroutine publishing
// progress for its job, so sends are non-blocking and drop on overflow.
const observerBuffer = 32

// Observer is a subscriber handed to one HTTP stream handler.
type Observer struct {
	ID     uuid.UUID
	JobID  int64
	Events chan Event
	done   chan struct{}
}

// Hub is the in-process Progress Channel: one topic per job, broadcast to
// every observer currently attached to it. Grounded on the teacher's
// SSEHub, generalized from per-user channel subscriptions to per-job
// topics.
type Hub struct {
	mu        sync.RWMutex
	log       *logger.Logger
	observers map[int64]map[*Observer]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:       log.With("component", "ProgressHub"),
		observers: make(map[int64]map[*Observer]bool),
	}
}

// Subscribe attaches a new observer to a job's topic.
func (h *Hub) Subscribe(jobID int64) *Observer {
	obs := &Observer{
		ID:     uuid.New(),
		JobID:  jobID,
		Events: make(chan Event, observerBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.observers[jobID]
	if !ok {
		set = make(map[*Observer]bool)
		h.observers[jobID] = set
	}
	set[obs] = true

	h.log.Debug("observer subscribed", "job_id", jobID, "observer_id", obs.ID)
	return obs
}

// Unsubscribe detaches an observer and closes its done channel. Events is
// left open: nothing more is delivered on it, but a receive never reports
// it closed.
func (h *Hub) Unsubscribe(obs *Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.observers[obs.JobID]; ok {
		delete(set, obs)
		if len(set) == 0 {
			delete(h.observers, obs.JobID)
		}
	}
	select {
	case <-obs.done:
	default:
		close(obs.done)
	}
}

// Publish fans an event out to every observer currently attached to its
// job, dropping the event for any observer whose buffer is full instead of
// blocking the publisher.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.observers[ev.JobID]
	if !ok {
		return
	}
	for obs := range set {
		select {
		case obs.Events <- ev:
		default:
			h.log.Warn("dropping progress event; observer buffer full", "job_id", ev.JobID, "observer_id", obs.ID, "kind", ev.Kind)
		}
	}
}
