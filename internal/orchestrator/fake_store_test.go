package orchestrator

import (
	"context"
	"sync"

	"github.com/ridgeline-labs/review-orchestrator/internal/domain"
	"github.com/ridgeline-labs/review-orchestrator/internal/store"
)

// fakeStore is an in-memory Store good enough for orchestrator tests: it
// applies the same MergeMetadata rule the real gorm store uses, just
// without a database underneath.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[int64]*domain.Job
}

func newFakeStore(job *domain.Job) *fakeStore {
	return &fakeStore{jobs: map[int64]*domain.Job{job.ID: job}}
}

func (s *fakeStore) CreateJob(ctx context.Context, job *domain.Job) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *fakeStore) GetJob(ctx context.Context, jobID int64) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := *s.jobs[jobID]
	return &j, nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, jobID int64, patch store.Patch) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := s.jobs[jobID]
	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.LLMDecision != nil {
		job.LLMDecision = *patch.LLMDecision
	}
	if patch.Metadata != nil {
		job.Metadata = store.MergeMetadata(job.Metadata, *patch.Metadata)
	}
	copy := *job
	return &copy, nil
}

func (s *fakeStore) ListJobs(ctx context.Context, filter store.Filter, page store.Page) ([]domain.Job, int64, error) {
	return nil, 0, nil
}

func (s *fakeStore) DeleteJob(ctx context.Context, jobID int64) error {
	return nil
}
