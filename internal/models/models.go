package models

// Record is the normalized metadata for a single Datastream, merged with the
// fields of its owning Thing. Textual fields are always present in JSON output
// (empty string when the upstream omits them); Location is omitted entirely
// when no Location carried coordinates.
type Record struct {
	ThingID             ID     `json:"thing_id"`
	ThingName           string `json:"thing_name"`
	DatastreamID        ID     `json:"datastream_id"`
	DatastreamName      string `json:"datastream_name"`
	Description         string `json:"description"`
	Location            *Point `json:"location,omitempty"`
	SensorType          string `json:"sensor_type"`
	ObservedProperty    string `json:"observed_property"`
	UnitOfMeasurement   string `json:"unit_of_measurement"`
	ObservationType     string `json:"observation_type"`
	SamplingFrequency   string `json:"sampling_frequency"`
	TimeRange           string `json:"time_range"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	LastObservationTime string `json:"last_observation_time"`
}

// Key returns the identifier used for incremental state.
func (r Record) Key() string {
	return string(r.DatastreamID)
}

// Point is a WGS84 position.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Summary counts the outcome of an incremental reconciliation.
type Summary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Total     int `json:"total"`
}
