// Package domain holds the data shapes shared by every component of the
// review pipeline: the job record, its segments, the stage output union,
// and the best-practice records the retrieval stage hands downstream.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Decision is the closed enum for both the human and the machine verdict.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionOnHold   Decision = "on_hold"
)

// Status values form an advisory trail (spec §4.7). The set is open; these
// are the ones the orchestrator itself writes along the canonical path.
const (
	StatusPending       = "pending"
	StatusBPDone        = "bp_done"
	StatusObjectiveDone = "objective_done"
	StatusDataDone      = "data_done"
	StatusRiskDone      = "risk_done"
	StatusROIDone       = "roi_done"
	StatusCompleted     = "completed"
	StatusError         = "error"
	StatusCanceled      = "canceled"
)

// Stage numbers referenced by HitlStages and by the orchestrator's fixed
// ordering. Stage 1 (retrieval) is never subject to HITL.
const (
	StageRetrieval = 1
	StageObjective = 2
	StageData      = 3
	StageRisk      = 4
	StageROI       = 5
	StageFinal     = 6
)

// Segment is one independently reviewable unit of a submission. A
// single-document submission has exactly one segment.
type Segment struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// BestPracticeRecord is opaque to the orchestrator; stages 2-6 consume it
// verbatim as prompt context.
type BestPracticeRecord struct {
	Title          string `json:"title"`
	TechType       string `json:"tech_type"`
	BusinessDomain string `json:"business_domain"`
	Division       string `json:"division"`
	ProblemAsWas   string `json:"problem_as_was"`
	SolutionToBe   string `json:"solution_to_be"`
	Summary        string `json:"summary"`
	Tips           string `json:"tips,omitempty"`
	Link           string `json:"link,omitempty"`
}

// StageOutputKind discriminates the StageOutput tagged union.
type StageOutputKind string

const (
	StageOutputText    StageOutputKind = "text"
	StageOutputBPCases StageOutputKind = "bp_cases"
	StageOutputFinal   StageOutputKind = "final"
)

// FinalStageResult is the structured payload produced by stage 6.
type FinalStageResult struct {
	ReportHTML     string   `json:"report_html"`
	LLMDecision    Decision `json:"llm_decision"`
	DecisionReason string   `json:"decision_reason"`
}

// StageOutput is a tagged variant rather than a free-form blob (design note
// in spec.md §9): exactly one of Text/Cases/Final is populated, selected by
// Kind.
type StageOutput struct {
	Kind  StageOutputKind       `json:"kind"`
	Text  string                `json:"text,omitempty"`
	Cases []BestPracticeRecord  `json:"cases,omitempty"`
	Final *FinalStageResult     `json:"final,omitempty"`
	Issue *QualityAssessment    `json:"quality,omitempty"` // last quality-gate read of this output, if any
}

// QualityAssessment is the advisory output of the quality gate (spec §4.6).
type QualityAssessment struct {
	Issues     []string `json:"issues"`
	Suggestion string   `json:"suggestion"`
}

// SegmentReport is one entry of metadata.segment_reports (spec §3).
type SegmentReport struct {
	Title  string   `json:"title"`
	ID     string   `json:"id"`
	Report string   `json:"report"`
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// FinalDecision is metadata.final_decision (spec §3), the last segment to
// finish in a single-segment job, or the synthesized last-segment value for
// reporting purposes in a multi-segment job.
type FinalDecision struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason"`
}

// Metadata is the structured bag described in spec.md §3. AgentResults is
// keyed segment-id -> stage-name -> latest output, so invariant I2 ("at
// most once per segment per attempt; later writes overwrite") holds
// per-segment rather than globally in multi-segment jobs.
type Metadata struct {
	AgentResults   map[string]map[string]StageOutput `json:"agent_results,omitempty"`
	FinalDecision  *FinalDecision                     `json:"final_decision,omitempty"`
	Report         string                             `json:"report,omitempty"`
	HitlStages     []int                              `json:"hitl_stages,omitempty"`
	SegmentReports []SegmentReport                    `json:"segment_reports,omitempty"`
}

// EnsureSegment returns the per-segment agent-results map, allocating it and
// its parents if this is the segment's first write.
func (m *Metadata) EnsureSegment(segmentID string) map[string]StageOutput {
	if m.AgentResults == nil {
		m.AgentResults = map[string]map[string]StageOutput{}
	}
	seg, ok := m.AgentResults[segmentID]
	if !ok {
		seg = map[string]StageOutput{}
		m.AgentResults[segmentID] = seg
	}
	return seg
}

// Job is the durable record described in spec.md §3. It is persisted as a
// single row; Segments/HitlStages/Metadata are stored as jsonb columns
// (gorm.io/datatypes), matching the teacher's JobRun.Payload/Result shape.
type Job struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"job_id"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	Domain          string         `gorm:"column:domain;index" json:"domain"`
	Division        string         `gorm:"column:division;index" json:"division"`
	ProposalContent string         `gorm:"column:proposal_content;type:text" json:"proposal_content"`
	SegmentsJSON    datatypes.JSON `gorm:"column:segments;type:jsonb" json:"-"`
	HitlStagesJSON  datatypes.JSON `gorm:"column:hitl_stages;type:jsonb" json:"-"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	HumanDecision   Decision       `gorm:"column:human_decision;not null;default:pending" json:"human_decision"`
	LLMDecision     Decision       `gorm:"column:llm_decision;not null;default:pending" json:"llm_decision"`
	MetadataJSON    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"-"`
	CreatedAt       time.Time      `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;not null;index" json:"updated_at"`

	// Decoded views of the JSON columns. Populated by the store on read and
	// marshaled back into the *JSON columns on write; never touched by GORM
	// directly (hence no `gorm:` tag).
	Segments   []Segment `gorm:"-" json:"segments"`
	HitlStages []int     `gorm:"-" json:"hitl_stages"`
	Metadata   Metadata  `gorm:"-" json:"metadata"`
}

func (Job) TableName() string { return "jobs" }

// JobEvent is an append-only audit row written alongside a job update,
// in the same transaction (spec.md §5: "a single `jobs` record per job
// plus any append-only event log is acceptable"). Unlike the Progress
// Channel (C5), this is durable and has no observer attached to it; it
// exists for after-the-fact inspection of what changed on a job and when.
type JobEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID     int64     `gorm:"column:job_id;not null;index" json:"job_id"`
	Kind      string    `gorm:"column:kind;not null" json:"kind"`
	Detail    string    `gorm:"column:detail;type:text" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (JobEvent) TableName() string { return "job_events" }

// HasHitl reports whether the orchestrator must pause after running stage n.
func (j *Job) HasHitl(stage int) bool {
	for _, s := range j.HitlStages {
		if s == stage {
			return true
		}
	}
	return false
}
