// Package signature computes the change-detection digest of a record.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// version is bumped whenever the canonical layout changes, so that stored
// signatures from an older layout never compare equal.
const version = "v1"

// Of returns the hex SHA-256 of the record's canonical form. The canonical
// form is a JSON array with the fields in a fixed order, so the result does
// not depend on how the record was built.
func Of(r models.Record) string {
	sum := sha256.Sum256(Canonical(r))
	return hex.EncodeToString(sum[:])
}

// Canonical returns the byte string that Of hashes.
func Canonical(r models.Record) []byte {
	var location any
	if r.Location != nil {
		location = [2]float64{r.Location.Lat, r.Location.Lon}
	}

	fields := []any{
		version,
		r.ThingID.String(),
		r.ThingName,
		r.DatastreamID.String(),
		r.DatastreamName,
		r.Description,
		location,
		r.SensorType,
		r.ObservedProperty,
		r.UnitOfMeasurement,
		r.ObservationType,
		r.SamplingFrequency,
		r.TimeRange,
		r.StartTime,
		r.EndTime,
		r.LastObservationTime,
	}

	// a slice of strings, floats and nil always marshals
	b, _ := json.Marshal(fields)
	return b
}
