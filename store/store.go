// Package store defines persistence for download jobs. A job is stored while
// it is pending or running and deleted once it completes or is cancelled.
//
// Implementations live in subpackages:
//
//	store/memory  in-process map, for tests and ephemeral runs
//	store/file    one JSON file per job, guarded by file locks
//	store/redis   one hash per job plus an index set
package store

import (
	"context"
	"streamspace/types"
)

// JobStore persists jobs. All methods must be safe for concurrent use.
type JobStore interface {
	ExistsByID(ctx context.Context, id string) (bool, error)
	Save(ctx context.Context, job types.Job) error
	// DeleteByID removes a job; deleting an unknown id is not an error.
	DeleteByID(ctx context.Context, id string) error
	FindAll(ctx context.Context) ([]types.Job, error)
}

// Counter is implemented by stores that can count jobs without loading them
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Count returns the number of stored jobs, using Counter when available
func Count(ctx context.Context, s JobStore) (int, error) {
	if c, ok := s.(Counter); ok {
		return c.Count(ctx)
	}
	jobs, err := s.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}
