package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/sensorthings-metadata/internal/models"
	"github.com/02loveslollipop/sensorthings-metadata/internal/reconcile"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// datasetView is a record with its classification in the last run.
type datasetView struct {
	models.Record
	Status reconcile.Status `json:"status,omitempty"`
}

// handleV1ListDatasets returns a page of harvested records
// GET /api/v1/catalog/datasets?page=1&limit=20&thing_id=7&status=updated
func (s *Server) handleV1ListDatasets(c *gin.Context) {
	if !s.ensureData(c) {
		return
	}
	page, limit := pagination(c)

	status := reconcile.Status(c.Query("status"))
	switch status {
	case "", reconcile.Created, reconcile.Updated, reconcile.Unchanged:
	default:
		abortWithError(c, NewAPIError(ErrorCodeBadRequest, "invalid status, expected created, updated or unchanged", gin.H{"status": status}, http.StatusBadRequest))
		return
	}
	thingID := c.Query("thing_id")

	snap := s.svc.Current()
	views := make([]datasetView, 0, len(snap.Records))
	for _, rec := range snap.Records {
		if thingID != "" && string(rec.ThingID) != thingID {
			continue
		}
		st := snap.Statuses[rec.Key()]
		if status != "" && st != status {
			continue
		}
		views = append(views, datasetView{Record: rec, Status: st})
	}

	start, end := pageBounds(len(views), page, limit)
	meta := gin.H{
		"run_id":       snap.RunID,
		"harvested_at": formatTime(snap.HarvestedAt),
	}
	if snap.Incremental != nil {
		meta["incremental"] = snap.Incremental
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       views[start:end],
		"meta":       meta,
		"pagination": paginationMeta(page, limit, len(views)),
	})
}

// handleV1GetDataset returns a single record by datastream id
// GET /api/v1/catalog/datasets/:id
func (s *Server) handleV1GetDataset(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		abortWithError(c, NewAPIError(ErrorCodeBadRequest, "datastream id is required", nil, http.StatusBadRequest))
		return
	}
	if !s.ensureData(c) {
		return
	}

	snap := s.svc.Current()
	for _, rec := range snap.Records {
		if rec.Key() == id {
			c.JSON(http.StatusOK, gin.H{
				"data": datasetView{Record: rec, Status: snap.Statuses[id]},
			})
			return
		}
	}
	abortWithError(c, NewAPIError(ErrorCodeNotFound, "dataset not found", gin.H{"id": id}, http.StatusNotFound))
}

// handleV1ListSTACItems returns a page of STAC items
// GET /api/v1/catalog/stac/items?page=1&limit=20
func (s *Server) handleV1ListSTACItems(c *gin.Context) {
	if !s.ensureData(c) {
		return
	}
	page, limit := pagination(c)

	items := s.svc.STACItems()
	start, end := pageBounds(len(items.Features), page, limit)

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"type":     items.Type,
			"links":    items.Links,
			"features": items.Features[start:end],
		},
		"pagination": paginationMeta(page, limit, len(items.Features)),
	})
}

// handleV1DCATCatalog returns the DCAT catalog
// GET /api/v1/catalog/dcat
func (s *Server) handleV1DCATCatalog(c *gin.Context) {
	if !s.ensureData(c) {
		return
	}
	cat := s.svc.DCATCatalog()
	c.JSON(http.StatusOK, gin.H{
		"data": cat,
		"meta": gin.H{
			"count": len(cat.Datasets),
		},
	})
}

// pagination parses page and limit; invalid values fall back to defaults.
func pagination(c *gin.Context) (int, int) {
	page := 1
	if p := c.Query("page"); p != "" {
		if val, err := strconv.Atoi(p); err == nil && val > 0 {
			page = val
		}
	}

	limit := defaultPageLimit
	if l := c.Query("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= maxPageLimit {
			limit = val
		}
	}
	return page, limit
}

// pageBounds returns the slice bounds of a page, clamped to total.
func pageBounds(total, page, limit int) (int, int) {
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

func paginationMeta(page, limit, total int) gin.H {
	return gin.H{
		"page":        page,
		"limit":       limit,
		"total_count": total,
		"total_pages": (total + limit - 1) / limit,
	}
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
