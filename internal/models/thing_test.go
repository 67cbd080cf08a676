package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Text
	}{
		{name: "string", in: `"rain gauge"`, want: "rain gauge"},
		{name: "number", in: `42`, want: "42"},
		{name: "bool", in: `true`, want: "true"},
		{name: "null", in: `null`, want: ""},
		{name: "object", in: `{"en":"rain"}`, want: ""},
		{name: "array", in: `["rain"]`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Text
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatastreamIgnoresNonObjectSensor(t *testing.T) {
	var ds Datastream
	require.NoError(t, json.Unmarshal([]byte(`{"@iot.id":1,"Sensor":"DHT22","ObservedProperty":{"name":"Rain"}}`), &ds))
	assert.Nil(t, ds.Sensor)
	require.NotNil(t, ds.ObservedProperty)
	assert.Equal(t, Text("Rain"), ds.ObservedProperty.Name)
}

func TestThingCollectsRejectedDatastreams(t *testing.T) {
	var thing Thing
	require.NoError(t, json.Unmarshal([]byte(`{"@iot.id":1,"Datastreams":[{"@iot.id":[1]},{"@iot.id":2}]}`), &thing))
	require.Len(t, thing.Datastreams, 1)
	assert.Equal(t, ID("2"), thing.Datastreams[0].ID)
	assert.Len(t, thing.Rejected, 1)
}
