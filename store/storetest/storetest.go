// Package storetest holds the behaviour every store.JobStore must share.
package storetest

import (
	"context"
	"fmt"
	"streamspace/store"
	"streamspace/types"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises a JobStore built by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.JobStore) {
	t.Run("save then exists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.ExistsByID(ctx, "ABC")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Save(ctx, job("ABC", time.Now())))

		ok, err = s.ExistsByID(ctx, "ABC")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("round trip keeps attributes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		in := job("DEF", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
		in.DescriptorRef = "/tmp/DEF.torrent"
		in.DisplayName = "Big Buck Bunny"
		in.MediaKind = types.MediaKindAudio
		in.Strategy = types.StrategySequential
		require.NoError(t, s.Save(ctx, in))

		all, err := s.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		out := all[0]
		assert.Equal(t, in.ID, out.ID)
		assert.Equal(t, in.DescriptorRef, out.DescriptorRef)
		assert.Equal(t, in.DisplayName, out.DisplayName)
		assert.Equal(t, in.MovieCode, out.MovieCode)
		assert.Equal(t, in.MediaKind, out.MediaKind)
		assert.Equal(t, in.Strategy, out.Strategy)
		assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	})

	t.Run("delete removes and tolerates unknown ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, job("GHI", time.Now())))
		require.NoError(t, s.DeleteByID(ctx, "GHI"))
		require.NoError(t, s.DeleteByID(ctx, "GHI"))

		ok, err := s.ExistsByID(ctx, "GHI")
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := store.Count(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("find all orders by creation time", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.Save(ctx, job("C", base.Add(2*time.Hour))))
		require.NoError(t, s.Save(ctx, job("A", base)))
		require.NoError(t, s.Save(ctx, job("B", base.Add(time.Hour))))

		all, err := s.FindAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"A", "B", "C"}, []string{all[0].ID, all[1].ID, all[2].ID})

		n, err := store.Count(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("concurrent saves", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Save(ctx, job(fmt.Sprintf("JOB%d", i), time.Now())))
			}(i)
		}
		wg.Wait()

		all, err := s.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 10)
	})
}

func job(id string, created time.Time) types.Job {
	j := types.NewJob(id, "", types.MediaKindVideo)
	j.CreatedAt = created
	return j
}
