package store

import (
	"testing"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

func TestMergeMetadata_AgentResultsMergeBySegmentThenStage(t *testing.T) {
	old := domain.Metadata{
		AgentResults: map[string]map[string]domain.StageOutput{
			"seg-1": {
				"objective": {Kind: domain.StageOutputText, Text: "old objective"},
			},
		},
	}
	patch := domain.Metadata{
		AgentResults: map[string]map[string]domain.StageOutput{
			"seg-1": {
				"objective": {Kind: domain.StageOutputText, Text: "new objective"},
				"data":      {Kind: domain.StageOutputText, Text: "new data"},
			},
			"seg-2": {
				"objective": {Kind: domain.StageOutputText, Text: "seg2 objective"},
			},
		},
	}

	merged := MergeMetadata(old, patch)

	if got := merged.AgentResults["seg-1"]["objective"].Text; got != "new objective" {
		t.Fatalf("expected patch to win for seg-1/objective, got %q", got)
	}
	if got := merged.AgentResults["seg-1"]["data"].Text; got != "new data" {
		t.Fatalf("expected seg-1/data to be added, got %q", got)
	}
	if got := merged.AgentResults["seg-2"]["objective"].Text; got != "seg2 objective" {
		t.Fatalf("expected seg-2 to be added from the patch, got %q", got)
	}
}

func TestMergeMetadata_TopLevelKeysOverwrite(t *testing.T) {
	old := domain.Metadata{
		Report:         "old report",
		HitlStages:     []int{2, 3},
		SegmentReports: []domain.SegmentReport{{ID: "seg-1", Report: "old"}},
	}
	patch := domain.Metadata{
		Report:         "new report",
		SegmentReports: []domain.SegmentReport{{ID: "seg-1", Report: "old"}, {ID: "seg-2", Report: "new"}},
	}

	merged := MergeMetadata(old, patch)

	if merged.Report != "new report" {
		t.Fatalf("expected report to be overwritten, got %q", merged.Report)
	}
	if len(merged.SegmentReports) != 2 {
		t.Fatalf("expected segment_reports to be replaced wholesale, got %d entries", len(merged.SegmentReports))
	}
	if len(merged.HitlStages) != 2 {
		t.Fatalf("expected hitl_stages to survive an empty patch field, got %v", merged.HitlStages)
	}
}

func TestMergeMetadata_EmptyPatchIsNoOp(t *testing.T) {
	old := domain.Metadata{
		AgentResults: map[string]map[string]domain.StageOutput{
			"seg-1": {"objective": {Kind: domain.StageOutputText, Text: "x"}},
		},
		Report: "r",
	}

	merged := MergeMetadata(old, domain.Metadata{})

	if merged.Report != "r" {
		t.Fatalf("expected report unchanged, got %q", merged.Report)
	}
	if merged.AgentResults["seg-1"]["objective"].Text != "x" {
		t.Fatalf("expected agent_results unchanged")
	}
}

func TestMergeMetadata_IsIdempotent(t *testing.T) {
	old := domain.Metadata{
		AgentResults: map[string]map[string]domain.StageOutput{
			"seg-1": {"objective": {Kind: domain.StageOutputText, Text: "x"}},
		},
		Report: "r",
	}
	patch := domain.Metadata{
		AgentResults: map[string]map[string]domain.StageOutput{
			"seg-1": {"data": {Kind: domain.StageOutputText, Text: "y"}},
		},
	}

	once := MergeMetadata(old, patch)
	twice := MergeMetadata(once, patch)

	if len(twice.AgentResults["seg-1"]) != 2 {
		t.Fatalf("expected re-applying the same patch to be a no-op, got %d stage entries", len(twice.AgentResults["seg-1"]))
	}
	if twice.AgentResults["seg-1"]["data"].Text != "y" {
		t.Fatalf("expected data stage output preserved across reapplication")
	}
}
