package redis

import (
	"context"
	"streamspace/store"
	"streamspace/store/storetest"
	"streamspace/types"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.JobStore {
		s, _ := newTestStore(t)
		return s
	})
}

func TestPing(t *testing.T) {
	s, mr := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

func TestFindAllSkipsDanglingIndexEntries(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, types.NewJob("ABC", "", types.MediaKindVideo)))
	_, err := mr.SAdd(indexKey, "GONE")
	require.NoError(t, err)

	jobs, err := s.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "ABC", jobs[0].ID)
}

func TestSaveWritesHashFields(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	j := types.NewJob("ABC", "Sintel", types.MediaKindAudio)
	j.Strategy = types.StrategySequential
	require.NoError(t, s.Save(ctx, j))

	assert.Equal(t, "Sintel", mr.HGet(jobKey("ABC"), "display_name"))
	assert.Equal(t, "audio", mr.HGet(jobKey("ABC"), "media_kind"))
	assert.Equal(t, "sequential", mr.HGet(jobKey("ABC"), "strategy"))
}
