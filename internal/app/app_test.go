package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/sensorthings-metadata/internal/config"
)

func testConfig(t *testing.T, endpoint string) config.Config {
	dir := t.TempDir()
	return config.Config{
		Endpoint:         endpoint,
		RequestTimeout:   2 * time.Second,
		Retries:          0,
		Incremental:      true,
		StateFile:        filepath.Join(dir, "state.json"),
		MetadataOutput:   filepath.Join(dir, "records.json"),
		STACOutput:       filepath.Join(dir, "stac.json"),
		STACCollectionID: "test",
		RunlogPath:       filepath.Join(dir, "runs.db"),
	}
}

func TestBuildWiresPublishers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"@iot.id":1,"Datastreams":[{"@iot.id":2,"name":"rain"}]}]}`)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Build(context.Background(), cfg, log)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Runlog)

	snap, err := a.Service.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)

	data, err := os.ReadFile(cfg.MetadataOutput)
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 1)
	assert.FileExists(t, cfg.STACOutput)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(cfg.StateFile), "dcat.json"))

	state, err := os.ReadFile(cfg.StateFile)
	require.NoError(t, err)
	assert.Contains(t, string(state), `"2"`)

	runs, err := a.Runlog.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, snap.RunID, runs[0].ID)
	assert.Equal(t, "success", runs[0].Status)
}

func TestBuildWithoutRunlog(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.RunlogPath = ""
	cfg.Incremental = false

	a, err := Build(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Runlog)
	assert.NotNil(t, a.Metrics)
}

func TestBuildRejectsHalfCredentials(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.Username = "alice"

	_, err := Build(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1")
	cfg.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Build(ctx, cfg, slog.Default())
	assert.Error(t, err)
}
