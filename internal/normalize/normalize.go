package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

// samplingFrequencyKeys are the Datastream properties servers use for the
// sampling cadence, in lookup order.
var samplingFrequencyKeys = []string{"sampling_frequency", "samplingFrequency", "frequency"}

var errNotObject = errors.New("entity is not a JSON object")

// DecodeThing parses one raw entity from a Things page.
func DecodeThing(raw json.RawMessage) (models.Thing, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return models.Thing{}, errNotObject
	}
	var thing models.Thing
	if err := json.Unmarshal(trimmed, &thing); err != nil {
		return models.Thing{}, err
	}
	return thing, nil
}

// Flatten converts a Thing into one record per Datastream. Datastreams
// without an @iot.id are skipped.
func Flatten(thing models.Thing) []models.Record {
	records := make([]models.Record, 0, len(thing.Datastreams))
	location := FirstLocation(thing.Locations)

	for _, ds := range thing.Datastreams {
		if ds.ID == "" {
			continue
		}
		records = append(records, buildRecord(thing, ds, location))
	}
	return records
}

func buildRecord(thing models.Thing, ds models.Datastream, location *models.Point) models.Record {
	timeRange := TimeRange(ds)
	start, end := SplitTimeRange(timeRange)

	description := string(thing.Description)
	if description == "" {
		description = string(ds.Description)
	}

	rec := models.Record{
		ThingID:             thing.ID,
		ThingName:           string(thing.Name),
		DatastreamID:        ds.ID,
		DatastreamName:      string(ds.Name),
		Description:         description,
		UnitOfMeasurement:   Unit(ds.UnitOfMeasurement),
		ObservationType:     string(ds.ObservationType),
		SamplingFrequency:   SamplingFrequency(ds.Properties),
		TimeRange:           timeRange,
		StartTime:           start,
		EndTime:             end,
		LastObservationTime: end,
	}
	if location != nil {
		loc := *location
		rec.Location = &loc
	}
	if ds.Sensor != nil {
		rec.SensorType = string(ds.Sensor.Name)
	}
	if ds.ObservedProperty != nil {
		rec.ObservedProperty = string(ds.ObservedProperty.Name)
	}
	return rec
}

// FirstLocation returns the position of the first Location, in upstream order,
// whose GeoJSON coordinates hold at least two numbers.
func FirstLocation(locations []models.Location) *models.Point {
	for _, loc := range locations {
		if p, ok := point(loc.Location); ok {
			return &p
		}
	}
	return nil
}

func point(raw json.RawMessage) (models.Point, bool) {
	if len(raw) == 0 {
		return models.Point{}, false
	}
	var geo struct {
		Coordinates []json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &geo); err != nil || len(geo.Coordinates) < 2 {
		return models.Point{}, false
	}
	var lon, lat float64
	if json.Unmarshal(geo.Coordinates[0], &lon) != nil || json.Unmarshal(geo.Coordinates[1], &lat) != nil {
		return models.Point{}, false
	}
	return models.Point{Lat: lat, Lon: lon}, true
}

// Unit picks the unit symbol, falling back to its name.
func Unit(raw json.RawMessage) string {
	var unit struct {
		Name   any `json:"name"`
		Symbol any `json:"symbol"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &unit) != nil {
		return ""
	}
	if s, ok := unit.Symbol.(string); ok && s != "" {
		return s
	}
	if s, ok := unit.Name.(string); ok {
		return s
	}
	return ""
}

// SamplingFrequency returns the declared sampling cadence, or "" when the
// upstream does not expose one. Non-string values keep their JSON literal.
func SamplingFrequency(props models.RawObject) string {
	for _, key := range samplingFrequencyKeys {
		raw, ok := props[key]
		if !ok {
			continue
		}
		value := bytes.TrimSpace(raw)
		if len(value) == 0 || string(value) == "null" {
			continue
		}
		var s string
		if json.Unmarshal(value, &s) == nil {
			return s
		}
		return string(value)
	}
	return ""
}

// TimeRange derives the ISO-8601 interval of a Datastream from its
// phenomenonTime, falling back to resultTime. Both bounds give "start/end",
// a single bound is returned alone and no bound gives "".
func TimeRange(ds models.Datastream) string {
	source := strings.TrimSpace(string(ds.PhenomenonTime))
	if source == "" {
		source = strings.TrimSpace(string(ds.ResultTime))
	}
	if source == "" {
		return ""
	}

	start, end, found := strings.Cut(source, "/")
	if !found {
		return source
	}
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	switch {
	case start != "" && end != "":
		return start + "/" + end
	case start != "":
		return start
	default:
		return end
	}
}

// SplitTimeRange is the only source of start and end times. Only a full
// "start/end" interval yields bounds; a lone bound leaves both empty.
func SplitTimeRange(timeRange string) (string, string) {
	if timeRange == "" {
		return "", ""
	}
	start, end, found := strings.Cut(timeRange, "/")
	if !found {
		return "", ""
	}
	return start, end
}
