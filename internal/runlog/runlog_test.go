package runlog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs", "harvest_runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPublishAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ok := harvest.Run{
		ID:        "run-1",
		Endpoint:  "http://sta",
		StartedAt: start,
		Duration:  1500 * time.Millisecond,
		Pages:     2,
		Snapshot: &harvest.Snapshot{
			Records:     []models.Record{{DatastreamID: "1"}, {DatastreamID: "2"}},
			Incremental: &models.Summary{Created: 1, Unchanged: 1, Total: 2},
		},
	}
	failed := harvest.Run{
		ID:        "run-2",
		Endpoint:  "http://sta",
		StartedAt: start.Add(time.Minute),
		Err:       errors.New("authentication failed"),
	}
	require.NoError(t, s.Publish(ctx, ok))
	require.NoError(t, s.Publish(ctx, failed))

	entries, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "run-2", entries[0].ID)
	assert.Equal(t, "failed", entries[0].Status)
	assert.Equal(t, "authentication failed", entries[0].Error)
	assert.Nil(t, entries[0].Created)

	assert.Equal(t, "run-1", entries[1].ID)
	assert.Equal(t, "success", entries[1].Status)
	assert.Equal(t, int64(1500), entries[1].DurationMS)
	assert.Equal(t, 2, entries[1].Records)
	require.NotNil(t, entries[1].Created)
	assert.Equal(t, 1, *entries[1].Created)
	assert.Equal(t, 1, *entries[1].Unchanged)
	assert.True(t, start.Equal(entries[1].StartedAt))
}

func TestRecentLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Publish(ctx, harvest.Run{ID: id, StartedAt: time.Unix(int64(i), 0)}))
	}

	entries, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}

func TestRecentEmpty(t *testing.T) {
	entries, err := openStore(t).Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
