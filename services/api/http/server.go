package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/02loveslollipop/sensorthings-metadata/internal/harvest"
	"github.com/02loveslollipop/sensorthings-metadata/internal/logger"
	"github.com/02loveslollipop/sensorthings-metadata/internal/runlog"
	"github.com/02loveslollipop/sensorthings-metadata/services/api/config"
)

// harvestTimeout bounds a request-triggered harvest, including the wait for
// a run already in progress.
const harvestTimeout = 5 * time.Minute

// RunHistory lists recorded harvest runs.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]runlog.Entry, error)
}

// Deps are the collaborators the API serves from. History and Metrics may be
// nil.
type Deps struct {
	Service *harvest.Service
	History RunHistory
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg     config.Config
	svc     *harvest.Service
	history RunHistory
	log     *slog.Logger
	engine  *gin.Engine
	handler http.Handler
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(deps.Logger))

	if cfg.BearerToken != "" {
		engine.Use(bearerAuthMiddleware(cfg.BearerToken))
	}

	server := &Server{
		cfg:     cfg,
		svc:     deps.Service,
		history: deps.History,
		log:     deps.Logger,
		engine:  engine,
	}
	server.registerRoutes(deps.Metrics)
	server.registerV1Routes()

	server.handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "X-API-Version"},
		AllowCredentials: cfg.BearerToken != "",
	}).Handler(engine)
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the engine wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(metrics http.Handler) {
	s.engine.GET("/healthz", s.handleHealth)

	s.engine.GET("/datasets", s.handleDatasets)
	s.engine.GET("/stac/items", s.handleSTACItems)
	s.engine.GET("/stac/items/:id", s.handleSTACItem)
	s.engine.GET("/dcat/catalog", s.handleDCATCatalog)
	s.engine.POST("/harvest", s.handleHarvest)
	s.engine.GET("/runs", s.handleRuns)

	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.svc.Current()
	body := gin.H{"status": "ok", "records": len(snap.Records)}
	if snap.RunID != "" {
		body["last_run_id"] = snap.RunID
		body["last_harvest"] = snap.HarvestedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}

// ensureData refreshes the snapshot when it is stale. It writes the error
// response and returns false when no snapshot was produced. A run whose only
// failure was saving the state still serves its records.
func (s *Server) ensureData(c *gin.Context) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), harvestTimeout)
	defer cancel()

	snap, err := s.svc.Refresh(ctx, false)
	if snap == nil {
		abortWithError(c, classify(err))
		return false
	}
	if err != nil {
		logger.FromContext(c.Request.Context()).Warn("harvest state not committed", "error", err)
	}
	return true
}

func (s *Server) handleDatasets(c *gin.Context) {
	if !s.ensureData(c) {
		return
	}
	c.JSON(http.StatusOK, s.svc.Datasets())
}

func (s *Server) handleSTACItems(c *gin.Context) {
	if !s.ensureData(c) {
		return
	}
	c.JSON(http.StatusOK, s.svc.STACItems())
}

func (s *Server) handleSTACItem(c *gin.Context) {
	if !s.ensureData(c) {
		return
	}
	id := c.Param("id")
	for _, feature := range s.svc.STACItems().Features {
		if feature.ID == id {
			c.JSON(http.StatusOK, feature)
			return
		}
	}
	abortWithError(c, NewAPIError(ErrorCodeNotFound, "item not found", gin.H{"id": id}, http.StatusNotFound))
}

func (s *Server) handleDCATCatalog(c *gin.Context) {
	if !s.ensureData(c) {
		return
	}
	c.JSON(http.StatusOK, s.svc.DCATCatalog())
}

func (s *Server) handleHarvest(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), harvestTimeout)
	defer cancel()

	snap, err := s.svc.Run(ctx)
	if snap == nil {
		abortWithError(c, classify(err))
		return
	}

	body := gin.H{
		"run_id":       snap.RunID,
		"harvested_at": snap.HarvestedAt.UTC().Format(time.RFC3339),
		"count":        len(snap.Records),
	}
	if snap.Incremental != nil {
		body["incremental"] = snap.Incremental
	}
	if err != nil {
		body["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRuns(c *gin.Context) {
	entries, ok := s.recentRuns(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": entries})
}

func (s *Server) recentRuns(c *gin.Context) ([]runlog.Entry, bool) {
	if s.history == nil {
		abortWithError(c, NewAPIError(ErrorCodeRunlogDisabled, "run history is disabled", nil, http.StatusNotFound))
		return nil, false
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			abortWithError(c, NewAPIError(ErrorCodeBadRequest, "invalid limit", gin.H{"limit": limitStr}, http.StatusBadRequest))
			return nil, false
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		abortWithError(c, NewAPIError(ErrorCodeInternalServerError, err.Error(), nil, http.StatusInternalServerError))
		return nil, false
	}
	return entries, true
}
