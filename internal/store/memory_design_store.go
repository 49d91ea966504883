package store

import (
	"context"
	"sync"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
)

type MemoryDesignStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.DesignJob
}

func NewMemoryDesignStore() *MemoryDesignStore {
	return &MemoryDesignStore{
		jobs: make(map[string]domain.DesignJob),
	}
}

func (s *MemoryDesignStore) Create(_ context.Context, job domain.DesignJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryDesignStore) Get(_ context.Context, id string) (domain.DesignJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryDesignStore) UpdateStatus(_ context.Context, id, status string) (domain.DesignJob, error) {
	return s.update(id, func(job *domain.DesignJob) {
		job.Status = status
	})
}

func (s *MemoryDesignStore) MarkSucceeded(_ context.Context, id, outputKey string) (domain.DesignJob, error) {
	return s.update(id, func(job *domain.DesignJob) {
		job.Status = domain.DesignStatusSucceeded
		job.OutputKey = outputKey
	})
}

func (s *MemoryDesignStore) MarkFailed(_ context.Context, id, reason string) (domain.DesignJob, error) {
	return s.update(id, func(job *domain.DesignJob) {
		job.Status = domain.DesignStatusFailed
		job.FailureReason = reason
	})
}

func (s *MemoryDesignStore) update(id string, apply func(*domain.DesignJob)) (domain.DesignJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.DesignJob{}, ErrDesignNotFound
	}

	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}
