// Package file stores each job as a JSON document on disk.
//
// Storage layout:
//
//	{dir}/
//	  {job-id}.json
//	  {job-id}.json.lock
//
// Reads take a shared file lock and writes an exclusive one, so several
// processes may point at the same directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"streamspace/types"
	"strings"

	"github.com/gofrs/flock"
)

const ext = ".json"

// Store is a directory of job files
type Store struct {
	dir string
}

// New creates the directory if needed and returns a store rooted at it
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("job store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory
func (s *Store) Dir() string {
	return s.dir
}

// ExistsByID reports whether a job file exists
func (s *Store) ExistsByID(_ context.Context, id string) (bool, error) {
	path, err := s.path(id)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat job %s: %w", id, err)
}

// Save writes the job file, replacing any previous version
func (s *Store) Save(_ context.Context, job types.Job) error {
	path, err := s.path(job.ID)
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// write-then-rename keeps readers from seeing a half-written file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write job: %w", err)
	}
	return nil
}

// DeleteByID removes the job file and its lock file
func (s *Store) DeleteByID(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	err = os.Remove(path)
	_ = lock.Unlock()
	_ = os.Remove(path + ".lock")

	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// FindAll loads every job file, oldest first. Unreadable files are skipped.
func (s *Store) FindAll(_ context.Context) ([]types.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]types.Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		job, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs, nil
}

func (s *Store) read(path string) (types.Job, error) {
	var job types.Job

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return job, fmt.Errorf("failed to acquire read lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return job, fmt.Errorf("failed to read job: %w", err)
	}
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("failed to parse job: %w", err)
	}
	return job, nil
}

func (s *Store) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid job id %q", id)
	}
	return filepath.Join(s.dir, id+ext), nil
}
