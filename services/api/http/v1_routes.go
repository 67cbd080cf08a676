package http

// registerV1Routes sets up the versioned API.
// Groups: /api/v1/catalog, /api/v1/harvest
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware()) // Add X-API-Version: v1 header

	// Catalog endpoints - records and their projections, paginated
	catalog := v1.Group("/catalog")
	{
		catalog.GET("/datasets", s.handleV1ListDatasets)
		catalog.GET("/datasets/:id", s.handleV1GetDataset)
		catalog.GET("/stac/items", s.handleV1ListSTACItems)
		catalog.GET("/dcat", s.handleV1DCATCatalog)
	}

	// Harvest endpoints - run state and history
	harvest := v1.Group("/harvest")
	{
		harvest.GET("/latest", s.handleV1HarvestLatest)
		harvest.POST("", s.handleV1HarvestNow)
		harvest.GET("/runs", s.handleV1ListRuns)
	}
}
