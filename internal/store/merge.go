package store

import "github.com/ridgeline-labs/review-orchestrator/internal/domain"

// MergeMetadata implements the one non-trivial merge rule in spec.md §4.1:
// top-level keys overwrite except agent_results, which is merged
// segment-wise then stage-wise (patch wins per segment/name). It is a pure
// function so the idempotence property in spec.md §8 is directly testable
// without a database.
func MergeMetadata(old, patch domain.Metadata) domain.Metadata {
	out := old

	if patch.AgentResults != nil {
		merged := make(map[string]map[string]domain.StageOutput, len(old.AgentResults)+len(patch.AgentResults))
		for segID, stages := range old.AgentResults {
			seg := make(map[string]domain.StageOutput, len(stages))
			for name, result := range stages {
				seg[name] = result
			}
			merged[segID] = seg
		}
		for segID, stagePatch := range patch.AgentResults {
			seg, ok := merged[segID]
			if !ok {
				seg = map[string]domain.StageOutput{}
				merged[segID] = seg
			}
			for name, result := range stagePatch {
				seg[name] = result
			}
		}
		out.AgentResults = merged
	}

	if patch.FinalDecision != nil {
		out.FinalDecision = patch.FinalDecision
	}
	if patch.Report != "" {
		out.Report = patch.Report
	}
	if patch.HitlStages != nil {
		out.HitlStages = patch.HitlStages
	}
	if patch.SegmentReports != nil {
		out.SegmentReports = patch.SegmentReports
	}

	return out
}
