package metrics

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
)

const runMeasurement = "harvest_run"

// Influx writes one point per harvest run.
type Influx struct {
	client influxdb2.Client
	org    string
	bucket string
}

// NewInflux returns an InfluxDB publisher.
func NewInflux(url, token, org, bucket string) *Influx {
	return &Influx{
		client: influxdb2.NewClient(url, token),
		org:    org,
		bucket: bucket,
	}
}

// Close releases the client.
func (i *Influx) Close() {
	i.client.Close()
}

func (i *Influx) Name() string { return "influxdb" }

// Publish implements harvest.Publisher.
func (i *Influx) Publish(ctx context.Context, run harvest.Run) error {
	writeAPI := i.client.WriteAPIBlocking(i.org, i.bucket)

	fields := map[string]interface{}{
		"duration_ms": run.Duration.Milliseconds(),
		"pages":       run.Pages,
		"skipped":     run.Skipped,
		"run_id":      run.ID,
	}
	if snap := run.Snapshot; snap != nil {
		fields["records"] = len(snap.Records)
		if sum := snap.Incremental; sum != nil {
			fields["created"] = sum.Created
			fields["updated"] = sum.Updated
			fields["unchanged"] = sum.Unchanged
		}
	}

	p := influxdb2.NewPoint(
		runMeasurement,
		map[string]string{"endpoint": run.Endpoint, "status": run.Status()},
		fields,
		run.StartedAt,
	)
	if err := writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write influx point: %w", err)
	}
	return nil
}
