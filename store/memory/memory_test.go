package memory

import (
	"context"
	"streamspace/store"
	"streamspace/store/storetest"
	"streamspace/types"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.JobStore { return New() })
}

func TestStoreCountsSavesAndDeletes(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, types.NewJob("A", "", types.MediaKindVideo)))
	require.NoError(t, s.DeleteByID(ctx, "A"))
	require.NoError(t, s.DeleteByID(ctx, "A"))

	assert.Equal(t, 1, s.Saves())
	assert.Equal(t, 1, s.Deletes())
}
