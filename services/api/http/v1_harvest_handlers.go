package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleV1HarvestLatest describes the snapshot currently served, without
// triggering a harvest
// GET /api/v1/harvest/latest
func (s *Server) handleV1HarvestLatest(c *gin.Context) {
	snap := s.svc.Current()
	if snap.RunID == "" {
		abortWithError(c, NewAPIError(ErrorCodeNotFound, "no harvest has completed yet", nil, http.StatusNotFound))
		return
	}

	data := gin.H{
		"run_id":       snap.RunID,
		"harvested_at": formatTime(snap.HarvestedAt),
		"count":        len(snap.Records),
	}
	if snap.Incremental != nil {
		data["incremental"] = snap.Incremental
	}
	c.JSON(http.StatusOK, gin.H{
		"data": data,
		"meta": gin.H{
			"generated_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// handleV1HarvestNow forces a harvest and reports its outcome
// POST /api/v1/harvest
func (s *Server) handleV1HarvestNow(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), harvestTimeout)
	defer cancel()

	snap, err := s.svc.Run(ctx)
	if snap == nil {
		abortWithError(c, classify(err))
		return
	}

	data := gin.H{
		"run_id":       snap.RunID,
		"harvested_at": formatTime(snap.HarvestedAt),
		"count":        len(snap.Records),
	}
	if snap.Incremental != nil {
		data["incremental"] = snap.Incremental
	}
	meta := gin.H{"committed": err == nil}
	if err != nil {
		meta["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "meta": meta})
}

// handleV1ListRuns returns recent harvest runs, newest first
// GET /api/v1/harvest/runs?limit=20
func (s *Server) handleV1ListRuns(c *gin.Context) {
	entries, ok := s.recentRuns(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": entries,
		"meta": gin.H{
			"count": len(entries),
		},
	})
}
