package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
)

// encodeJSONColumns marshals the decoded Segments/HitlStages/Metadata views
// into their jsonb columns ahead of a Create/Save.
func encodeJSONColumns(job *domain.Job) error {
	segments, err := json.Marshal(job.Segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	job.SegmentsJSON = datatypes.JSON(segments)

	hitl, err := json.Marshal(job.HitlStages)
	if err != nil {
		return fmt.Errorf("marshal hitl_stages: %w", err)
	}
	job.HitlStagesJSON = datatypes.JSON(hitl)

	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	job.MetadataJSON = datatypes.JSON(metadata)

	return nil
}

// decodeJSONColumns is the inverse of encodeJSONColumns, run after every
// read so callers only ever see the decoded views.
func decodeJSONColumns(job *domain.Job) error {
	if len(job.SegmentsJSON) > 0 {
		if err := json.Unmarshal(job.SegmentsJSON, &job.Segments); err != nil {
			return fmt.Errorf("unmarshal segments: %w", err)
		}
	}
	if len(job.HitlStagesJSON) > 0 {
		if err := json.Unmarshal(job.HitlStagesJSON, &job.HitlStages); err != nil {
			return fmt.Errorf("unmarshal hitl_stages: %w", err)
		}
	}
	if len(job.MetadataJSON) > 0 {
		if err := json.Unmarshal(job.MetadataJSON, &job.Metadata); err != nil {
			return fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return nil
}
