// Package store implements the Job Store (C3): a durable, keyed record
// store for jobs, with a single non-trivial merge rule applied atomically
// per job (spec.md §4.1).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/logger"
	"github.com/ridgeline-labs/review-orchestrator/internal/pkg/dbctx"
	pkgerrors "github.com/ridgeline-labs/review-orchestrator/internal/pkg/errors"
)

// Filter narrows ListJobs results; zero values are "don't filter on this".
type Filter struct {
	Status        string
	HumanDecision domain.Decision
	LLMDecision   domain.Decision
	Search        string // substring match over title/proposal_content
}

// Page is a simple offset/limit pager for the admin surface.
type Page struct {
	Offset int
	Limit  int
}

// Patch carries field-level updates for UpdateJob. Nil/zero fields are left
// untouched except Metadata, which is always deep-merged via MergeMetadata
// (an empty Metadata patch is a safe no-op merge).
type Patch struct {
	Title         *string
	Domain        *string
	Division      *string
	ProposalContent *string
	HitlStages    []int
	Status        *string
	HumanDecision *domain.Decision
	LLMDecision   *domain.Decision
	Metadata      *domain.Metadata
}

// Store is the Job Store contract consumed by the orchestrator and the
// admin HTTP surface.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) (int64, error)
	GetJob(ctx context.Context, jobID int64) (*domain.Job, error)
	UpdateJob(ctx context.Context, jobID int64, patch Patch) (*domain.Job, error)
	ListJobs(ctx context.Context, filter Filter, page Page) ([]domain.Job, int64, error)
	DeleteJob(ctx context.Context, jobID int64) error
}

type gormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func New(db *gorm.DB, log *logger.Logger) Store {
	return &gormStore{db: db, log: log.With("component", "JobStore")}
}

func (s *gormStore) CreateJob(ctx context.Context, job *domain.Job) (int64, error) {
	if job.Status == "" {
		job.Status = domain.StatusPending
	}
	if job.HumanDecision == "" {
		job.HumanDecision = domain.DecisionPending
	}
	if job.LLMDecision == "" {
		job.LLMDecision = domain.DecisionPending
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := encodeJSONColumns(job); err != nil {
		return 0, fmt.Errorf("encode job columns: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	return job.ID, nil
}

func (s *gormStore) GetJob(ctx context.Context, jobID int64) (*domain.Job, error) {
	var job domain.Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get job %d: %w", jobID, pkgerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("get job %d: %w", jobID, err)
	}
	if err := decodeJSONColumns(&job); err != nil {
		return nil, fmt.Errorf("decode job %d: %w", jobID, err)
	}
	return &job, nil
}

// UpdateJob applies a field-level patch atomically: it locks the row
// (SELECT ... FOR UPDATE) inside a transaction so the deep-merge of
// Metadata and the write-back happen as one unit, giving the
// single-writer-per-job guarantee spec.md §5 requires without a separate
// in-process lock. The same transaction also appends a JobEvent audit row
// (spec.md §5, "append-only event log"), threaded through via dbctx.Context
// so the job save and the event insert commit or roll back together.
func (s *gormStore) UpdateJob(ctx context.Context, jobID int64, patch Patch) (*domain.Job, error) {
	var result domain.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("lock job %d: %w", jobID, pkgerrors.ErrNotFound)
			}
			return fmt.Errorf("lock job %d: %w", jobID, err)
		}
		if err := decodeJSONColumns(&job); err != nil {
			return fmt.Errorf("decode job %d: %w", jobID, err)
		}

		applyPatch(&job, patch)
		job.UpdatedAt = time.Now().UTC()

		if err := encodeJSONColumns(&job); err != nil {
			return fmt.Errorf("encode job %d: %w", jobID, err)
		}
		if err := tx.Save(&job).Error; err != nil {
			return fmt.Errorf("save job %d: %w", jobID, err)
		}

		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.appendEvent(dbc, jobID, "job_updated", summarizePatch(patch)); err != nil {
			return fmt.Errorf("append event for job %d: %w", jobID, err)
		}

		result = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// appendEvent writes a JobEvent row using dbc's transaction, so it commits
// atomically with whatever other write dbc was opened for.
func (s *gormStore) appendEvent(dbc dbctx.Context, jobID int64, kind, detail string) error {
	event := domain.JobEvent{
		JobID:     jobID,
		Kind:      kind,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	return dbc.Tx.WithContext(dbc.Ctx).Create(&event).Error
}

// summarizePatch names which fields a Patch touches, for the audit trail;
// Metadata is always merged so it's reported whenever a Metadata patch was
// supplied, even an empty one.
func summarizePatch(patch Patch) string {
	var fields []string
	if patch.Title != nil {
		fields = append(fields, "title")
	}
	if patch.Domain != nil {
		fields = append(fields, "domain")
	}
	if patch.Division != nil {
		fields = append(fields, "division")
	}
	if patch.ProposalContent != nil {
		fields = append(fields, "proposal_content")
	}
	if patch.HitlStages != nil {
		fields = append(fields, "hitl_stages")
	}
	if patch.Status != nil {
		fields = append(fields, "status")
	}
	if patch.HumanDecision != nil {
		fields = append(fields, "human_decision")
	}
	if patch.LLMDecision != nil {
		fields = append(fields, "llm_decision")
	}
	if patch.Metadata != nil {
		fields = append(fields, "metadata")
	}
	if len(fields) == 0 {
		return "no-op patch"
	}
	return strings.Join(fields, ",")
}

func applyPatch(job *domain.Job, patch Patch) {
	if patch.Title != nil {
		job.Title = *patch.Title
	}
	if patch.Domain != nil {
		job.Domain = *patch.Domain
	}
	if patch.Division != nil {
		job.Division = *patch.Division
	}
	if patch.ProposalContent != nil {
		job.ProposalContent = *patch.ProposalContent
	}
	if patch.HitlStages != nil {
		job.HitlStages = patch.HitlStages
	}
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.HumanDecision != nil {
		job.HumanDecision = *patch.HumanDecision
	}
	if patch.LLMDecision != nil {
		job.LLMDecision = *patch.LLMDecision
	}
	if patch.Metadata != nil {
		job.Metadata = MergeMetadata(job.Metadata, *patch.Metadata)
	}
}

func (s *gormStore) ListJobs(ctx context.Context, filter Filter, page Page) ([]domain.Job, int64, error) {
	q := s.db.WithContext(ctx).Model(&domain.Job{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.HumanDecision != "" {
		q = q.Where("human_decision = ?", filter.HumanDecision)
	}
	if filter.LLMDecision != "" {
		q = q.Where("llm_decision = ?", filter.LLMDecision)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		q = q.Where("title ILIKE ? OR proposal_content ILIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	var jobs []domain.Job
	if err := q.Order("id DESC").Offset(page.Offset).Limit(limit).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	for i := range jobs {
		if err := decodeJSONColumns(&jobs[i]); err != nil {
			return nil, 0, fmt.Errorf("decode job %d: %w", jobs[i].ID, err)
		}
	}
	return jobs, total, nil
}

func (s *gormStore) DeleteJob(ctx context.Context, jobID int64) error {
	if err := s.db.WithContext(ctx).Delete(&domain.Job{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("delete job %d: %w", jobID, err)
	}
	return nil
}
