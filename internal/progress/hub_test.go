package progress

import (
	"testing"

	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestHub_PublishDeliversToSubscribedObserver(t *testing.T) {
	h := NewHub(testLogger(t))
	obs := h.Subscribe(42)
	defer h.Unsubscribe(obs)

	h.Publish(Event{JobID: 42, Kind: KindStageStatus, Stage: 1, Status: "running"})

	select {
	case ev := <-obs.Events:
		if ev.Kind != KindStageStatus || ev.Stage != 1 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected event to be delivered")
	}
}

func TestHub_PublishIgnoresOtherJobs(t *testing.T) {
	h := NewHub(testLogger(t))
	obs := h.Subscribe(1)
	defer h.Unsubscribe(obs)

	h.Publish(Event{JobID: 2, Kind: KindStageStatus})

	select {
	case ev := <-obs.Events:
		t.Fatalf("expected no event, got %+v", ev)
	default:
	}
}

func TestHub_PublishDropsOnFullBuffer(t *testing.T) {
	h := NewHub(testLogger(t))
	obs := h.Subscribe(7)
	defer h.Unsubscribe(obs)

	for i := 0; i < observerBuffer+10; i++ {
		h.Publish(Event{JobID: 7, Kind: KindPageProgress})
	}

	if len(obs.Events) != observerBuffer {
		t.Fatalf("expected buffer to saturate at %d, got %d", observerBuffer, len(obs.Events))
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	h := NewHub(testLogger(t))
	obs := h.Subscribe(9)
	h.Unsubscribe(obs)

	h.Publish(Event{JobID: 9, Kind: KindCompleted})

	select {
	case ev := <-obs.Events:
		t.Fatalf("expected no event after unsubscribe, got %+v", ev)
	default:
	}
}
