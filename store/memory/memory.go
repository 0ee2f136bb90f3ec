// Package memory is an in-process job store. Safe for concurrent access.
package memory

import (
	"context"
	"sort"
	"streamspace/types"
	"sync"
)

// Store keeps jobs in a map
type Store struct {
	mu   sync.RWMutex
	jobs map[string]types.Job

	saves   int
	deletes int
}

// New returns an empty store
func New() *Store {
	return &Store{jobs: make(map[string]types.Job)}
}

// ExistsByID reports whether a job is stored
func (s *Store) ExistsByID(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok, nil
}

// Save stores or replaces a job
func (s *Store) Save(_ context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	s.saves++
	return nil
}

// DeleteByID removes a job
func (s *Store) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; ok {
		delete(s.jobs, id)
		s.deletes++
	}
	return nil
}

// FindAll returns every job, oldest first
func (s *Store) FindAll(_ context.Context) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]types.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// Count returns the number of stored jobs
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs), nil
}

// Saves returns how many times Save was called
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Deletes returns how many stored jobs were actually removed
func (s *Store) Deletes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deletes
}
