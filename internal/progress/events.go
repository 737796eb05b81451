// Package progress implements the Progress Channel (C5): a per-job event
// topic that fans out stage/HITL/segment events to any number of
// observers, with an optional Redis bus for cross-replica fan-out.
package progress

// Kind enumerates the event shapes described in spec.md §6.
type Kind string

const (
	KindPageProgress  Kind = "page_progress"
	KindStageStatus   Kind = "stage_status"
	KindBPCases       Kind = "bp_cases"
	KindInterrupt     Kind = "interrupt"
	KindPageCompleted Kind = "page_completed"
	KindCompleted     Kind = "completed"
	KindError         Kind = "error"
)

// Event is one message on a job's topic.
type Event struct {
	JobID     int64  `json:"job_id"`
	SegmentID string `json:"segment_id,omitempty"`
	Kind      Kind   `json:"kind"`
	Stage     int    `json:"stage,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}
