package reconcile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
	"github.com/02loveslollipop/sensorthings-metadata/internal/signature"
)

func record(id models.ID, unit string) models.Record {
	return models.Record{ThingID: "1", ThingName: "station", DatastreamID: id, UnitOfMeasurement: unit}
}

func readState(t *testing.T, path string) map[string]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var state map[string]string
	require.NoError(t, json.Unmarshal(data, &state))
	return state
}

func TestRunScenarios(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "metadata_state.json")
	store := NewFileStore(path, nil)

	first := []models.Record{record("1", "mm")}
	out, err := Run(ctx, store, first)
	require.NoError(t, err)
	assert.Equal(t, models.Summary{Created: 1, Total: 1}, out.Summary)
	assert.Equal(t, Created, out.Statuses["1"])
	assert.Equal(t, map[string]string{"1": signature.Of(first[0])}, readState(t, path))

	out, err = Run(ctx, store, []models.Record{record("1", "mm")})
	require.NoError(t, err)
	assert.Equal(t, models.Summary{Unchanged: 1, Total: 1}, out.Summary)
	require.Len(t, out.Records, 1, "unchanged records are still returned")

	out, err = Run(ctx, store, []models.Record{record("1", "cm")})
	require.NoError(t, err)
	assert.Equal(t, models.Summary{Updated: 1, Total: 1}, out.Summary)
	assert.Equal(t, Updated, out.Statuses["1"])

	out, err = Run(ctx, store, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Records)
	assert.Equal(t, models.Summary{}, out.Summary)
	assert.NotContains(t, readState(t, path), "1")
}

func TestReconcileIsIdempotent(t *testing.T) {
	records := []models.Record{record("1", "mm"), record("2", "degC"), record("abc", "")}

	first := Reconcile(State{}, records)
	second := Reconcile(first.State, records)

	assert.Equal(t, models.Summary{Unchanged: 3, Total: 3}, second.Summary)
	assert.Equal(t, first.State, second.State)
}

func TestReconcileKeepsFirstOfRepeatedIDs(t *testing.T) {
	records := []models.Record{record("1", "mm"), record("2", "degC"), record("1", "cm")}

	first := Reconcile(State{}, records)
	assert.Equal(t, models.Summary{Created: 2, Total: 2}, first.Summary)
	assert.Equal(t, []string{"1"}, first.Duplicates)
	require.Len(t, first.Records, 2)
	assert.Equal(t, "mm", first.Records[0].UnitOfMeasurement)
	assert.Equal(t, signature.Of(records[0]), first.State["1"])

	second := Reconcile(first.State, records)
	assert.Equal(t, models.Summary{Unchanged: 2, Total: 2}, second.Summary)
	assert.Equal(t, first.State, second.State)
}

func TestReconcileDropsRemovedIDs(t *testing.T) {
	prior := State{"1": "old", "gone": "sig"}
	out := Reconcile(prior, []models.Record{record("1", "mm")})

	assert.NotContains(t, out.State, "gone")
	assert.Len(t, out.State, 1)
	for _, rec := range out.Records {
		assert.NotEqual(t, "gone", rec.Key())
	}
	assert.Equal(t, models.Summary{Updated: 1, Total: 1}, out.Summary)
	assert.Equal(t, State{"1": "old", "gone": "sig"}, prior, "prior state is not mutated")
}

func TestLoadMissingFile(t *testing.T) {
	state, err := NewFileStore(filepath.Join(t.TempDir(), "none.json"), nil).Load()
	require.NoError(t, err)
	assert.Empty(t, state)
	assert.NotNil(t, state)
}

func TestLoadCorruptFile(t *testing.T) {
	for name, content := range map[string]string{
		"garbage": "{not json",
		"array":   "[1,2]",
		"empty":   "  \n",
		"null":    "null",
		"numbers": `{"1": 5}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			state, err := NewFileStore(path, nil).Load()
			require.NoError(t, err)
			assert.Empty(t, state)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	// a directory exists at the path but cannot be read as a file
	path := t.TempDir()

	_, err := NewFileStore(path, nil).Load()
	require.Error(t, err)
	var readErr *models.StateReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, path, readErr.Path)

	_, err = Run(context.Background(), NewFileStore(path, nil), []models.Record{record("1", "")})
	assert.ErrorAs(t, err, &readErr)
}

func TestLoadLegacyEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"signatures": {"1": "abc", "2": "def"}}`), 0o644))

	state, err := NewFileStore(path, nil).Load()
	require.NoError(t, err)
	assert.Equal(t, State{"1": "abc", "2": "def"}, state)
}

func TestSaveIsSortedAndReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, nil)
	require.NoError(t, store.Save(State{"b": "2", "a": "1"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"1\",\n  \"b\": \"2\"\n}\n", string(data))

	state, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, State{"a": "1", "b": "2"}, state)
}

func TestRunStateWriteFailureStillReturnsResult(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// the parent of the state path is a regular file
	store := NewFileStore(filepath.Join(blocker, "state.json"), nil)
	out, err := Run(context.Background(), store, []models.Record{record("1", "mm")})
	require.Error(t, err)
	assert.True(t, models.IsStateWrite(err))
	assert.Equal(t, models.Summary{Created: 1, Total: 1}, out.Summary)
	assert.Len(t, out.Records, 1)
}

func TestRunCancelledLeavesStateUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, nil)
	require.NoError(t, store.Save(State{"1": "old"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, store, []models.Record{record("2", "")})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, map[string]string{"1": "old"}, readState(t, path))
}
