package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Thing models a SensorThings Thing as returned with
// $expand=Locations,Datastreams($expand=Sensor,ObservedProperty).
// Fields whose shape varies between servers are kept raw and interpreted by
// the normalize package.
type Thing struct {
	ID          ID           `json:"@iot.id"`
	Name        Text         `json:"name"`
	Description Text         `json:"description"`
	Properties  RawObject    `json:"properties,omitempty"`
	Locations   []Location   `json:"Locations"`
	Datastreams []Datastream `json:"Datastreams"`

	// Rejected holds one error per expanded Datastream that could not be
	// decoded. Those Datastreams are left out of Datastreams.
	Rejected []error `json:"-"`
}

// UnmarshalJSON decodes the Thing and its expanded collections element by
// element, so one bad Location or Datastream does not lose its siblings.
func (t *Thing) UnmarshalJSON(b []byte) error {
	var aux struct {
		ID          ID              `json:"@iot.id"`
		Name        Text            `json:"name"`
		Description Text            `json:"description"`
		Properties  RawObject       `json:"properties"`
		Locations   json.RawMessage `json:"Locations"`
		Datastreams json.RawMessage `json:"Datastreams"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	*t = Thing{
		ID:          aux.ID,
		Name:        aux.Name,
		Description: aux.Description,
		Properties:  aux.Properties,
	}

	for _, raw := range rawElements(aux.Locations) {
		var loc Location
		if json.Unmarshal(raw, &loc) == nil {
			t.Locations = append(t.Locations, loc)
		}
	}
	for i, raw := range rawElements(aux.Datastreams) {
		var ds Datastream
		if err := json.Unmarshal(raw, &ds); err != nil {
			t.Rejected = append(t.Rejected, fmt.Errorf("datastream %d: %w", i, err))
			continue
		}
		t.Datastreams = append(t.Datastreams, ds)
	}
	return nil
}

// Location is an expanded Thing location; Location holds GeoJSON.
type Location struct {
	ID           ID              `json:"@iot.id"`
	Name         Text            `json:"name"`
	EncodingType Text            `json:"encodingType"`
	Location     json.RawMessage `json:"location"`
}

// Datastream is one observed time series of a Thing.
type Datastream struct {
	ID                ID                `json:"@iot.id"`
	Name              Text              `json:"name"`
	Description       Text              `json:"description"`
	UnitOfMeasurement json.RawMessage   `json:"unitOfMeasurement"`
	ObservationType   Text              `json:"observationType"`
	PhenomenonTime    Text              `json:"phenomenonTime"`
	ResultTime        Text              `json:"resultTime"`
	Properties        RawObject         `json:"properties"`
	Sensor            *Sensor           `json:"Sensor"`
	ObservedProperty  *ObservedProperty `json:"ObservedProperty"`
}

// UnmarshalJSON implements json.Unmarshaler. A Sensor or ObservedProperty
// that cannot be decoded is treated as absent.
func (d *Datastream) UnmarshalJSON(b []byte) error {
	if !isObject(b) {
		return fmt.Errorf("datastream is not a JSON object")
	}
	type plain Datastream
	var aux struct {
		plain
		Sensor           json.RawMessage `json:"Sensor"`
		ObservedProperty json.RawMessage `json:"ObservedProperty"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*d = Datastream(aux.plain)

	var sensor Sensor
	if isObject(aux.Sensor) && json.Unmarshal(aux.Sensor, &sensor) == nil {
		d.Sensor = &sensor
	}
	var prop ObservedProperty
	if isObject(aux.ObservedProperty) && json.Unmarshal(aux.ObservedProperty, &prop) == nil {
		d.ObservedProperty = &prop
	}
	return nil
}

// Sensor describes the instrument behind a Datastream.
type Sensor struct {
	ID           ID   `json:"@iot.id"`
	Name         Text `json:"name"`
	Description  Text `json:"description"`
	EncodingType Text `json:"encodingType"`
}

// ObservedProperty describes what a Datastream measures.
type ObservedProperty struct {
	ID          ID   `json:"@iot.id"`
	Name        Text `json:"name"`
	Definition  Text `json:"definition"`
	Description Text `json:"description"`
}

// Text is a string field as loosely typed servers send it. Strings decode
// as is, other scalars keep their JSON literal, and null, objects and arrays
// decode to "".
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	switch {
	case len(trimmed) == 0, string(trimmed) == "null", trimmed[0] == '{', trimmed[0] == '[':
		*t = ""
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = Text(s)
	default:
		*t = Text(trimmed)
	}
	return nil
}

// String returns the text.
func (t Text) String() string {
	return string(t)
}

// RawObject is a JSON object whose values are decoded lazily. A JSON value
// that is not an object decodes to nil instead of failing the whole entity.
type RawObject map[string]json.RawMessage

// UnmarshalJSON implements json.Unmarshaler.
func (o *RawObject) UnmarshalJSON(b []byte) error {
	trimmed := strings.TrimSpace(string(b))
	if !strings.HasPrefix(trimmed, "{") {
		*o = nil
		return nil
	}
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("decode object: %w", err)
	}
	*o = m
	return nil
}

// rawElements splits a JSON array into its elements. Anything other than an
// array yields no elements.
func rawElements(b json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}
	var elems []json.RawMessage
	if json.Unmarshal(trimmed, &elems) != nil {
		return nil
	}
	return elems
}

func isObject(b json.RawMessage) bool {
	trimmed := bytes.TrimSpace(b)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
