package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

const weatherStation = `{
	"@iot.id": 7,
	"name": "Weather station",
	"description": "Rooftop station",
	"Locations": [
		{"@iot.id": 1, "location": {"type": "Point"}},
		{"@iot.id": 2, "location": {"type": "Point", "coordinates": [6.14, 46.2]}},
		{"@iot.id": 3, "location": {"type": "Point", "coordinates": [1, 2]}}
	],
	"Datastreams": [
		{
			"@iot.id": 11,
			"name": "Air temperature",
			"unitOfMeasurement": {"name": "degree Celsius", "symbol": "degC"},
			"observationType": "OM_Measurement",
			"phenomenonTime": "2024-01-01T00:00:00Z/2024-06-01T00:00:00Z",
			"properties": {"samplingFrequency": "PT10M"},
			"Sensor": {"@iot.id": 1, "name": "DHT22"},
			"ObservedProperty": {"@iot.id": 1, "name": "Temperature"}
		},
		{"name": "orphan"},
		{
			"@iot.id": "rh-12",
			"name": "Humidity",
			"description": "Relative humidity",
			"unitOfMeasurement": {"name": "percent"},
			"resultTime": "2024-03-01T00:00:00Z",
			"properties": {"frequency": 600}
		}
	]
}`

func decode(t *testing.T, raw string) models.Thing {
	t.Helper()
	thing, err := DecodeThing(json.RawMessage(raw))
	require.NoError(t, err)
	return thing
}

func TestFlattenWeatherStation(t *testing.T) {
	records := Flatten(decode(t, weatherStation))
	require.Len(t, records, 2)

	temp := records[0]
	assert.Equal(t, models.ID("7"), temp.ThingID)
	assert.Equal(t, "Weather station", temp.ThingName)
	assert.Equal(t, models.ID("11"), temp.DatastreamID)
	assert.Equal(t, "Rooftop station", temp.Description)
	require.NotNil(t, temp.Location)
	assert.Equal(t, models.Point{Lat: 46.2, Lon: 6.14}, *temp.Location)
	assert.Equal(t, "DHT22", temp.SensorType)
	assert.Equal(t, "Temperature", temp.ObservedProperty)
	assert.Equal(t, "degC", temp.UnitOfMeasurement)
	assert.Equal(t, "OM_Measurement", temp.ObservationType)
	assert.Equal(t, "PT10M", temp.SamplingFrequency)
	assert.Equal(t, "2024-01-01T00:00:00Z/2024-06-01T00:00:00Z", temp.TimeRange)
	assert.Equal(t, "2024-01-01T00:00:00Z", temp.StartTime)
	assert.Equal(t, "2024-06-01T00:00:00Z", temp.EndTime)
	assert.Equal(t, temp.EndTime, temp.LastObservationTime)

	hum := records[1]
	assert.Equal(t, models.ID("rh-12"), hum.DatastreamID)
	assert.Equal(t, "Rooftop station", hum.Description)
	assert.Equal(t, "percent", hum.UnitOfMeasurement)
	assert.Equal(t, "", hum.SensorType)
	assert.Equal(t, "", hum.ObservationType)
	assert.Equal(t, "600", hum.SamplingFrequency)
	assert.Equal(t, "2024-03-01T00:00:00Z", hum.TimeRange)
	// a lone instant is not an interval
	assert.Equal(t, "", hum.StartTime)
	assert.Equal(t, "", hum.EndTime)
	assert.Equal(t, "", hum.LastObservationTime)

	// records do not share the Thing's location
	hum.Location.Lat = 0
	assert.Equal(t, 46.2, temp.Location.Lat)
}

func TestFlattenSkipsDatastreamsWithoutID(t *testing.T) {
	thing := decode(t, `{"@iot.id":1,"Datastreams":[{"name":"a"},{"@iot.id":null,"name":"b"}]}`)
	assert.Empty(t, Flatten(thing))
}

func TestFlattenThingWithoutDatastreams(t *testing.T) {
	assert.Empty(t, Flatten(decode(t, `{"@iot.id":1,"name":"empty"}`)))
}

func TestFlattenNoLocationNoFrequency(t *testing.T) {
	thing := decode(t, `{"@iot.id":1,"name":"t","Datastreams":[{"@iot.id":1,"name":"d"}]}`)
	records := Flatten(thing)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Location)
	assert.Equal(t, "", records[0].SamplingFrequency)

	out, err := json.Marshal(records[0])
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(out, &fields))
	assert.NotContains(t, fields, "location")
	assert.Equal(t, "", fields["sampling_frequency"])
	assert.Equal(t, "", fields["observation_type"])
	assert.Equal(t, "", fields["description"])
}

func TestFlattenDescriptionFallsBackToDatastream(t *testing.T) {
	thing := decode(t, `{"@iot.id":1,"Datastreams":[{"@iot.id":2,"description":"from datastream"}]}`)
	records := Flatten(thing)
	require.Len(t, records, 1)
	assert.Equal(t, "from datastream", records[0].Description)
}

func TestDecodeThingRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"thing"`, `42`, `null`, ``} {
		_, err := DecodeThing(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestDecodeThingToleratesOddProperties(t *testing.T) {
	thing := decode(t, `{"@iot.id":1,"properties":"n/a","Datastreams":[{"@iot.id":2,"properties":[1]}]}`)
	assert.Nil(t, thing.Properties)
	records := Flatten(thing)
	require.Len(t, records, 1)
	assert.Equal(t, "", records[0].SamplingFrequency)
}

func TestFirstLocation(t *testing.T) {
	tests := []struct {
		name string
		raw  []string
		want *models.Point
	}{
		{name: "none"},
		{name: "no coordinates", raw: []string{`{"type":"Point"}`}},
		{name: "one coordinate", raw: []string{`{"coordinates":[1]}`}},
		{name: "non numeric", raw: []string{`{"coordinates":["a","b"]}`}},
		{name: "first valid wins", raw: []string{`{"coordinates":[]}`, `{"coordinates":[10,20,300]}`, `{"coordinates":[1,2]}`}, want: &models.Point{Lat: 20, Lon: 10}},
		{name: "zero is a position", raw: []string{`{"coordinates":[0,0]}`}, want: &models.Point{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var locations []models.Location
			for _, raw := range tt.raw {
				locations = append(locations, models.Location{Location: json.RawMessage(raw)})
			}
			assert.Equal(t, tt.want, FirstLocation(locations))
		})
	}
}

func TestUnit(t *testing.T) {
	assert.Equal(t, "mm", Unit(json.RawMessage(`{"name":"millimetre","symbol":"mm"}`)))
	assert.Equal(t, "millimetre", Unit(json.RawMessage(`{"name":"millimetre","symbol":""}`)))
	assert.Equal(t, "", Unit(json.RawMessage(`{"definition":"x"}`)))
	assert.Equal(t, "", Unit(json.RawMessage(`"mm"`)))
	assert.Equal(t, "", Unit(nil))
}

func TestSamplingFrequency(t *testing.T) {
	tests := []struct {
		name  string
		props models.RawObject
		want  string
	}{
		{name: "absent"},
		{name: "snake case first", props: models.RawObject{"sampling_frequency": json.RawMessage(`"PT1M"`), "frequency": json.RawMessage(`"PT5M"`)}, want: "PT1M"},
		{name: "null skipped", props: models.RawObject{"sampling_frequency": json.RawMessage(`null`), "frequency": json.RawMessage(`"PT5M"`)}, want: "PT5M"},
		{name: "number literal", props: models.RawObject{"samplingFrequency": json.RawMessage(`1.5`)}, want: "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SamplingFrequency(tt.props))
		})
	}
}

func TestTimeRange(t *testing.T) {
	tests := []struct {
		name string
		ds   models.Datastream
		want string
	}{
		{name: "none", want: ""},
		{name: "interval", ds: models.Datastream{PhenomenonTime: "a/b"}, want: "a/b"},
		{name: "instant", ds: models.Datastream{PhenomenonTime: "a"}, want: "a"},
		{name: "open end", ds: models.Datastream{PhenomenonTime: "a/"}, want: "a"},
		{name: "open start", ds: models.Datastream{PhenomenonTime: "/b"}, want: "b"},
		{name: "empty interval", ds: models.Datastream{PhenomenonTime: "/"}, want: ""},
		{name: "result time fallback", ds: models.Datastream{ResultTime: "r1/r2"}, want: "r1/r2"},
		{name: "phenomenon wins", ds: models.Datastream{PhenomenonTime: "p", ResultTime: "r"}, want: "p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeRange(tt.ds))
		})
	}
}

func TestSplitTimeRangeIsConsistentWithRecords(t *testing.T) {
	for _, phenomenon := range []string{"", "a", "a/b", "a/", "/b", " a / b "} {
		thing := models.Thing{ID: "1", Datastreams: []models.Datastream{{ID: "1", PhenomenonTime: models.Text(phenomenon)}}}
		rec := Flatten(thing)[0]

		start, end := SplitTimeRange(rec.TimeRange)
		assert.Equal(t, rec.StartTime, start, phenomenon)
		assert.Equal(t, rec.EndTime, end, phenomenon)
		if rec.TimeRange == "" {
			assert.Empty(t, rec.StartTime)
			assert.Empty(t, rec.EndTime)
		}
	}
}

func TestSplitTimeRange(t *testing.T) {
	tests := []struct {
		in         string
		start, end string
	}{
		{in: ""},
		{in: "2024-03-01T00:00:00Z"},
		{in: "a/b", start: "a", end: "b"},
	}
	for _, tt := range tests {
		start, end := SplitTimeRange(tt.in)
		assert.Equal(t, tt.start, start, tt.in)
		assert.Equal(t, tt.end, end, tt.in)
	}
}

func TestDecodeThingKeepsDatastreamsWithMistypedFields(t *testing.T) {
	thing := decode(t, `{
		"@iot.id": 1,
		"name": ["not", "text"],
		"Locations": "none",
		"Datastreams": [
			{"@iot.id": 1, "name": "ok", "Sensor": {"@iot.id": 1, "name": "DHT22"}},
			{"@iot.id": 2, "name": null, "description": 42, "observationType": {"x": 1},
			 "phenomenonTime": 7, "Sensor": "unknown", "ObservedProperty": [1]}
		]
	}`)
	assert.Empty(t, thing.Rejected)
	assert.Empty(t, thing.Locations)

	records := Flatten(thing)
	require.Len(t, records, 2)
	assert.Equal(t, "", records[0].ThingName)
	assert.Equal(t, "ok", records[0].DatastreamName)
	assert.Equal(t, "DHT22", records[0].SensorType)

	odd := records[1]
	assert.Equal(t, models.ID("2"), odd.DatastreamID)
	assert.Equal(t, "", odd.DatastreamName)
	assert.Equal(t, "42", odd.Description)
	assert.Equal(t, "", odd.ObservationType)
	assert.Equal(t, "7", odd.TimeRange)
	assert.Equal(t, "", odd.SensorType)
	assert.Equal(t, "", odd.ObservedProperty)
}

func TestDecodeThingRejectsOnlyUndecodableDatastreams(t *testing.T) {
	thing := decode(t, `{"@iot.id":1,"Datastreams":[
		{"@iot.id":true,"name":"bad id"},
		"not an object",
		{"@iot.id":3,"name":"good"}
	]}`)
	assert.Len(t, thing.Rejected, 2)
	records := Flatten(thing)
	require.Len(t, records, 1)
	assert.Equal(t, models.ID("3"), records[0].DatastreamID)
}

func TestDecodeThingSkipsBadLocations(t *testing.T) {
	thing := decode(t, `{"@iot.id":1,"Locations":[
		{"@iot.id":{"nested":1},"location":{"coordinates":[9,9]}},
		{"@iot.id":2,"location":{"coordinates":[1,2]}}
	],"Datastreams":[{"@iot.id":5}]}`)
	require.Len(t, thing.Locations, 1)
	records := Flatten(thing)
	require.Len(t, records, 1)
	assert.Equal(t, &models.Point{Lat: 2, Lon: 1}, records[0].Location)
}
