package harvest

import (
	"time"

	"github.com/02loveslollipop/sensorthings-metadata/internal/catalog"
	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
	"github.com/02loveslollipop/sensorthings-metadata/internal/reconcile"
)

// Snapshot is the complete output of one harvest run. It is immutable once
// published.
type Snapshot struct {
	RunID       string
	HarvestedAt time.Time
	Records     []models.Record
	// Incremental is nil when incremental mode is disabled.
	Incremental *models.Summary
	Statuses    map[string]reconcile.Status
	STAC        catalog.FeatureCollection
	DCAT        catalog.DCATCatalog
}

// Datasets is the response of the datasets read operation.
type Datasets struct {
	Records     []models.Record `json:"records"`
	Count       int             `json:"count"`
	Incremental *models.Summary `json:"incremental,omitempty"`
}

// Run describes a finished harvest attempt for publishers. Snapshot is nil
// when the run failed before producing a record set; Err may be set together
// with a Snapshot when only the state write failed.
type Run struct {
	ID        string
	Endpoint  string
	StartedAt time.Time
	Duration  time.Duration
	Pages     int
	Skipped   int
	Snapshot  *Snapshot
	Err       error
}

// Status is a short label for the run outcome.
func (r Run) Status() string {
	switch {
	case r.Err == nil:
		return "success"
	case r.Snapshot != nil:
		return "partial"
	default:
		return "failed"
	}
}

func newSnapshot(runID string, at time.Time, records []models.Record, opts catalog.STACOptions) *Snapshot {
	if records == nil {
		records = []models.Record{}
	}
	return &Snapshot{
		RunID:       runID,
		HarvestedAt: at,
		Records:     records,
		STAC:        catalog.STAC(records, opts),
		DCAT:        catalog.DCAT(records),
	}
}
