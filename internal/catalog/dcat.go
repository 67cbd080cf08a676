package catalog

import "github.com/02loveslollipop/sensorthings-metadata/internal/models"

// Context is the JSON-LD context of the catalog.
var Context = map[string]string{
	"dcat":   "http://www.w3.org/ns/dcat#",
	"dct":    "http://purl.org/dc/terms/",
	"locn":   "http://www.w3.org/ns/locn#",
	"schema": "https://schema.org/",
}

// DCATCatalog is a JSON-LD dcat:Catalog.
type DCATCatalog struct {
	Context  map[string]string `json:"@context"`
	Type     string            `json:"@type"`
	Datasets []Dataset         `json:"dcat:dataset"`
}

// Dataset is one dcat:Dataset per Datastream.
type Dataset struct {
	ID          string   `json:"@id"`
	Type        string   `json:"@type"`
	Identifier  string   `json:"dct:identifier"`
	Title       string   `json:"dct:title"`
	Description string   `json:"dct:description"`
	Keywords    []string `json:"dcat:keyword"`
	Temporal    Temporal `json:"dct:temporal"`
	Spatial     *Spatial `json:"dct:spatial,omitempty"`
}

// Temporal is the dct:temporal period of a dataset.
type Temporal struct {
	StartDate string `json:"schema:startDate"`
	EndDate   string `json:"schema:endDate"`
}

// Spatial is a dct:Location with a point geometry.
type Spatial struct {
	Type     string   `json:"@type"`
	Geometry Geometry `json:"locn:geometry"`
}

// DCAT builds one dataset per record.
func DCAT(records []models.Record) DCATCatalog {
	datasets := make([]Dataset, 0, len(records))
	for _, rec := range records {
		id := ItemID(rec)
		title := rec.DatastreamName
		if title == "" {
			title = rec.ThingName
		}

		ds := Dataset{
			ID:          id,
			Type:        "dcat:Dataset",
			Identifier:  id,
			Title:       title,
			Description: rec.Description,
			Keywords:    []string{rec.ObservedProperty, rec.SensorType},
			Temporal:    Temporal{StartDate: rec.StartTime, EndDate: rec.EndTime},
		}
		if rec.Location != nil {
			ds.Spatial = &Spatial{Type: "dct:Location", Geometry: *pointGeometry(*rec.Location)}
		}
		datasets = append(datasets, ds)
	}

	return DCATCatalog{
		Context:  Context,
		Type:     "dcat:Catalog",
		Datasets: datasets,
	}
}
