package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/emergency-dispatch/internal/models"
)

func TestMemoryStore_ListOrderedBySeq(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, models.StatusEvent{RequestID: "r1", Seq: 2, Snapshot: models.Snapshot{State: models.StatusConfirmed}}))
	require.NoError(t, s.Append(ctx, models.StatusEvent{RequestID: "r1", Seq: 1, Snapshot: models.Snapshot{State: models.StatusRequesting}}))
	require.NoError(t, s.Append(ctx, models.StatusEvent{RequestID: "r2", Seq: 1}))

	got, err := s.List(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.StatusRequesting, got[0].Snapshot.State)
	assert.Equal(t, models.StatusConfirmed, got[1].Snapshot.State)

	none, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
