// Package redis stores jobs in Redis. Each job is a hash under
// "streamspace:job:{id}" and the set "streamspace:jobs" indexes all ids.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"fmt"
	"sort"
	"streamspace/types"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "streamspace:job:"
	indexKey  = "streamspace:jobs"
)

func jobKey(id string) string { return keyPrefix + id }

// Store implements store.JobStore backed by Redis. The caller owns the client.
type Store struct {
	client goredis.Cmdable
}

// New creates a Redis-backed store
func New(client goredis.Cmdable) *Store {
	return &Store{client: client}
}

// Ping verifies the Redis connection is alive
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ExistsByID reports whether the job hash exists
func (s *Store) ExistsByID(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("streamspace/redis: exists %s: %w", id, err)
	}
	return n > 0, nil
}

// Save writes the job hash and indexes its id in one transaction
func (s *Store) Save(ctx context.Context, job types.Job) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, jobKey(job.ID), jobToMap(job))
	pipe.SAdd(ctx, indexKey, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("streamspace/redis: save %s: %w", job.ID, err)
	}
	return nil
}

// DeleteByID removes the job hash and its index entry
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, jobKey(id))
	pipe.SRem(ctx, indexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("streamspace/redis: delete %s: %w", id, err)
	}
	return nil
}

// FindAll loads every indexed job, oldest first. Index entries whose hash
// has disappeared are skipped.
func (s *Store) FindAll(ctx context.Context) ([]types.Job, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("streamspace/redis: list jobs: %w", err)
	}

	jobs := make([]types.Job, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HGetAll(ctx, jobKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("streamspace/redis: load %s: %w", id, err)
		}
		if len(fields) == 0 {
			continue
		}
		jobs = append(jobs, mapToJob(fields))
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// Count returns the size of the job index
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.SCard(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("streamspace/redis: count: %w", err)
	}
	return int(n), nil
}

func jobToMap(j types.Job) map[string]any {
	return map[string]any{
		"id":             j.ID,
		"descriptor_ref": j.DescriptorRef,
		"display_name":   j.DisplayName,
		"movie_code":     j.MovieCode,
		"media_kind":     string(j.MediaKind),
		"strategy":       string(j.Strategy),
		"created_at":     j.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapToJob(m map[string]string) types.Job {
	created, _ := time.Parse(time.RFC3339Nano, m["created_at"])
	return types.Job{
		ID:            m["id"],
		DescriptorRef: m["descriptor_ref"],
		DisplayName:   m["display_name"],
		MovieCode:     m["movie_code"],
		MediaKind:     types.MediaKind(m["media_kind"]),
		Strategy:      types.Strategy(m["strategy"]),
		CreatedAt:     created,
	}
}
