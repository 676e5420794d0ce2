// Package api provides the REST API server for testdesk.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dhyansraj/qa-testdesk/internal/cache"
	"github.com/dhyansraj/qa-testdesk/internal/config"
	"github.com/dhyansraj/qa-testdesk/internal/db"
	"github.com/dhyansraj/qa-testdesk/internal/execution"
	"github.com/dhyansraj/qa-testdesk/internal/logging"
	"github.com/dhyansraj/qa-testdesk/internal/session"
	"github.com/dhyansraj/qa-testdesk/internal/ticket"
)

// Server represents the API server
type Server struct {
	router   *gin.Engine
	repo     *db.Repository
	sessions *session.Registry
	runs     *execution.Service
	tickets  *ticket.Client
	port     int
	log      *slog.Logger
}

// NewServer creates a new API server over an open repository
func NewServer(repo *db.Repository, cfg config.Config) *Server {
	// Set Gin to release mode for cleaner output
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	s := &Server{
		router: router,
		repo:   repo,
		sessions: session.NewRegistry(session.Backends{
			Suites: db.SuiteBackend{Repository: repo},
			Cases:  db.CaseBackend{Repository: repo},
			Writer: repo,
		}, cache.WithTimeout(cfg.Cache.Timeout)),
		runs:    execution.NewService(repo),
		tickets: ticket.NewClient(cfg.Ticket.ProxyURL, cfg.Ticket.Timeout),
		port:    cfg.Server.Port,
		log:     logging.New("api"),
	}
	router.Use(s.requestLogger())

	s.setupRoutes()

	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down and closes every session
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting API server", slog.String("addr", "http://localhost"+srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	s.log.Info("API server stopped")
	return err
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "testdesk API server",
			"api":     "/api",
			"health":  "/health",
		})
	})

	api := s.router.Group("/api")
	{
		// Sessions
		api.POST("/sessions", s.openSession)
		api.DELETE("/sessions/:sid", s.closeSession)

		sess := api.Group("/sessions/:sid", s.withSession)
		{
			sess.GET("/tree", s.getTree)
			sess.POST("/tree/toggle", s.toggleSuite)
			sess.POST("/tree/reveal", s.revealSuite)

			// Suites
			sess.GET("/suites", s.listSuites)
			sess.POST("/suites", s.createSuite)
			sess.POST("/suites/reorder", s.reorderSuites)
			sess.PUT("/suites/:id", s.updateSuite)
			sess.DELETE("/suites/:id", s.deleteSuite)
			sess.POST("/suites/:id/move", s.moveSuite)

			// Test cases
			sess.GET("/cases", s.listCases)
			sess.POST("/cases", s.createCase)
			sess.POST("/cases/move", s.moveCases)
			sess.POST("/cases/reorder", s.reorderCases)
			sess.POST("/cases/import", s.importCases)
			sess.PUT("/cases/:id", s.updateCase)
			sess.DELETE("/cases/:id", s.deleteCase)
			sess.POST("/cases/:id/move", s.moveCase)

			// Drag and drop
			sess.GET("/drag", s.dragState)
			sess.PUT("/selection", s.setSelection)
			sess.POST("/drag/start", s.dragStart)
			sess.POST("/drag/hover", s.dragHover)
			sess.POST("/drag/drop", s.dragDrop)
			sess.POST("/drag/cancel", s.dragCancel)
		}

		// Plans
		api.GET("/projects/:pid/plans", s.listPlans)
		api.POST("/projects/:pid/plans", s.createPlan)

		// Runs
		api.GET("/projects/:pid/runs", s.listRuns)
		api.POST("/projects/:pid/runs", s.createRun)
		api.GET("/projects/:pid/stats", s.runStats)
		api.GET("/runs/:run_id", s.getRun)
		api.PATCH("/runs/:run_id", s.updateRunStatus)
		api.DELETE("/runs/:run_id", s.deleteRun)
		api.POST("/runs/:run_id/clone", s.cloneRun)
		api.GET("/runs/:run_id/results", s.getRunResults)
		api.POST("/runs/:run_id/execute", s.openExecution)

		// Executions
		api.GET("/executions/:eid", s.getExecution)
		api.PUT("/executions/:eid", s.editExecution)
		api.POST("/executions/:eid/attachments", s.addAttachment)
		api.POST("/executions/:eid/next", s.executionNext)
		api.POST("/executions/:eid/previous", s.executionPrevious)
		api.POST("/executions/:eid/close", s.executionClose)

		// Tickets
		api.POST("/tickets/test-connection", s.testTicketConnection)
		api.POST("/bugs/:bug_id/ticket", s.createTicket)
	}
}

// healthCheck handles GET /health
func (s *Server) healthCheck(c *gin.Context) {
	if err := s.repo.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
