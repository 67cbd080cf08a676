// Package db mirrors the harvested catalog into Postgres.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
	"github.com/02loveslollipop/sensorthings-metadata/internal/reconcile"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS sta_catalog;

CREATE TABLE IF NOT EXISTS sta_catalog.datastreams (
    datastream_id   TEXT PRIMARY KEY,
    thing_id        TEXT NOT NULL,
    thing_name      TEXT NOT NULL,
    datastream_name TEXT NOT NULL,
    lat             DOUBLE PRECISION,
    lon             DOUBLE PRECISION,
    start_time      TEXT NOT NULL,
    end_time        TEXT NOT NULL,
    status          TEXT NOT NULL,
    record          JSONB NOT NULL,
    run_id          TEXT NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);`

// DatastreamRow is one record as stored in sta_catalog.datastreams.
type DatastreamRow struct {
	DatastreamID   string
	ThingID        string
	ThingName      string
	DatastreamName string
	Lat            *float64
	Lon            *float64
	StartTime      string
	EndTime        string
	Status         string
	Record         []byte
}

// BuildRows converts records into rows. Status is empty when the run was not
// incremental.
func BuildRows(records []models.Record, statuses map[string]reconcile.Status) ([]DatastreamRow, error) {
	rows := make([]DatastreamRow, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode record %s: %w", rec.Key(), err)
		}
		row := DatastreamRow{
			DatastreamID:   rec.Key(),
			ThingID:        rec.ThingID.String(),
			ThingName:      rec.ThingName,
			DatastreamName: rec.DatastreamName,
			StartTime:      rec.StartTime,
			EndTime:        rec.EndTime,
			Status:         string(statuses[rec.Key()]),
			Record:         payload,
		}
		if loc := rec.Location; loc != nil {
			lat, lon := loc.Lat, loc.Lon
			row.Lat = &lat
			row.Lon = &lon
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Migrate creates the mirror schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate sta_catalog: %w", err)
	}
	return nil
}

// UpsertDatastreams inserts/updates datastream rows.
func UpsertDatastreams(ctx context.Context, pool *pgxpool.Pool, runID string, rows []DatastreamRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO sta_catalog.datastreams (datastream_id, thing_id, thing_name, datastream_name, lat, lon, start_time, end_time, status, record, run_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
ON CONFLICT (datastream_id) DO UPDATE
SET thing_id = EXCLUDED.thing_id,
    thing_name = EXCLUDED.thing_name,
    datastream_name = EXCLUDED.datastream_name,
    lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    start_time = EXCLUDED.start_time,
    end_time = EXCLUDED.end_time,
    status = EXCLUDED.status,
    record = EXCLUDED.record,
    run_id = EXCLUDED.run_id,
    updated_at = NOW()`

	for _, r := range rows {
		batch.Queue(query, r.DatastreamID, r.ThingID, r.ThingName, r.DatastreamName, r.Lat, r.Lon,
			r.StartTime, r.EndTime, r.Status, r.Record, runID)
	}

	res := pool.SendBatch(ctx, batch)
	defer res.Close()

	for range rows {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}

// PruneDatastreams deletes rows whose datastream is no longer harvested.
func PruneDatastreams(ctx context.Context, pool *pgxpool.Pool, keep []string) (int64, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM sta_catalog.datastreams WHERE NOT (datastream_id = ANY($1))`, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Mirror publishes completed runs to Postgres.
type Mirror struct {
	pool *pgxpool.Pool
}

// NewMirror connects to databaseURL and migrates the schema.
func NewMirror(ctx context.Context, databaseURL string) (*Mirror, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Mirror{pool: pool}, nil
}

// Close releases the pool.
func (m *Mirror) Close() {
	m.pool.Close()
}

func (m *Mirror) Name() string { return "postgres" }

// Publish implements harvest.Publisher. Runs without a snapshot are ignored.
func (m *Mirror) Publish(ctx context.Context, run harvest.Run) error {
	snap := run.Snapshot
	if snap == nil {
		return nil
	}

	rows, err := BuildRows(snap.Records, snap.Statuses)
	if err != nil {
		return err
	}
	if err := UpsertDatastreams(ctx, m.pool, run.ID, rows); err != nil {
		return fmt.Errorf("upsert datastreams: %w", err)
	}

	keep := make([]string, 0, len(rows))
	for _, r := range rows {
		keep = append(keep, r.DatastreamID)
	}
	if _, err := PruneDatastreams(ctx, m.pool, keep); err != nil {
		return fmt.Errorf("prune datastreams: %w", err)
	}
	return nil
}
