// Package catalog projects normalized records into STAC and DCAT views.
package catalog

import (
	"strings"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
)

const stacVersion = "1.0.0"

// STACOptions controls the STAC projection.
type STACOptions struct {
	CollectionID string
	// RootHref is the base for self and root links.
	RootHref string
}

// DefaultRootHref derives the STAC root from the upstream endpoint.
func DefaultRootHref(endpoint string) string {
	return strings.TrimRight(endpoint, "/") + "/stac"
}

// Link is a STAC link object.
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// Geometry is a GeoJSON point.
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// FeatureCollection is a STAC item collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Links    []Link    `json:"links"`
	Features []Feature `json:"features"`
}

// Feature is a STAC item for a single Datastream. Geometry and BBox are
// omitted for records without a location.
type Feature struct {
	Type        string         `json:"type"`
	StacVersion string         `json:"stac_version"`
	ID          string         `json:"id"`
	Collection  string         `json:"collection"`
	Geometry    *Geometry      `json:"geometry,omitempty"`
	BBox        []float64      `json:"bbox,omitempty"`
	Properties  ItemProperties `json:"properties"`
	Links       []Link         `json:"links"`
	Assets      map[string]any `json:"assets"`
}

// ItemProperties are the STAC item properties. Datetimes are null when unknown.
type ItemProperties struct {
	ThingID           models.ID `json:"thing_id"`
	ThingName         string    `json:"thing_name"`
	DatastreamID      models.ID `json:"datastream_id"`
	Description       string    `json:"description"`
	SensorType        string    `json:"sensor_type"`
	ObservedProperty  string    `json:"observed_property"`
	UnitOfMeasurement string    `json:"unit_of_measurement"`
	ObservationType   string    `json:"observation_type"`
	SamplingFrequency string    `json:"sampling_frequency"`
	TimeRange         string    `json:"time_range"`
	StartDatetime     *string   `json:"start_datetime"`
	EndDatetime       *string   `json:"end_datetime"`
	Datetime          *string   `json:"datetime"`
}

// ItemID is the identifier shared by the STAC item and DCAT dataset of a record.
func ItemID(r models.Record) string {
	return "datastream-" + r.DatastreamID.String()
}

// STAC builds one feature per record.
func STAC(records []models.Record, opts STACOptions) FeatureCollection {
	root := strings.TrimRight(opts.RootHref, "/")
	features := make([]Feature, 0, len(records))

	for _, rec := range records {
		id := ItemID(rec)
		feature := Feature{
			Type:        "Feature",
			StacVersion: stacVersion,
			ID:          id,
			Collection:  opts.CollectionID,
			Properties: ItemProperties{
				ThingID:           rec.ThingID,
				ThingName:         rec.ThingName,
				DatastreamID:      rec.DatastreamID,
				Description:       rec.Description,
				SensorType:        rec.SensorType,
				ObservedProperty:  rec.ObservedProperty,
				UnitOfMeasurement: rec.UnitOfMeasurement,
				ObservationType:   rec.ObservationType,
				SamplingFrequency: rec.SamplingFrequency,
				TimeRange:         rec.TimeRange,
				StartDatetime:     nullable(rec.StartTime),
				EndDatetime:       nullable(rec.EndTime),
				Datetime:          nullable(rec.LastObservationTime),
			},
			Links: []Link{
				{Rel: "self", Href: root + "/items/" + id},
				{Rel: "root", Href: root},
			},
			Assets: map[string]any{},
		}
		if loc := rec.Location; loc != nil {
			feature.Geometry = pointGeometry(*loc)
			feature.BBox = []float64{loc.Lon, loc.Lat, loc.Lon, loc.Lat}
		}
		features = append(features, feature)
	}

	return FeatureCollection{
		Type: "FeatureCollection",
		Links: []Link{
			{Rel: "self", Href: root + "/items"},
			{Rel: "root", Href: root},
		},
		Features: features,
	}
}

func pointGeometry(p models.Point) *Geometry {
	return &Geometry{Type: "Point", Coordinates: [2]float64{p.Lon, p.Lat}}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
