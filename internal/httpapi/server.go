// Package httpapi exposes the extraction pipeline over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/batch"
	"github.com/fyrsmithlabs/specforge/internal/errlog"
	"github.com/fyrsmithlabs/specforge/internal/logging"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves the extraction API.
type Server struct {
	echo      *echo.Echo
	extractor batch.Extractor
	driver    *batch.Driver
	errs      *errlog.Collector
	log       *logging.Logger
	config    Config
}

// NewServer creates the API server.
func NewServer(extractor batch.Extractor, driver *batch.Driver, errs *errlog.Collector, log *logging.Logger, cfg Config) (*Server, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if driver == nil {
		return nil, fmt.Errorf("batch driver cannot be nil")
	}
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9091
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)

			// Handlers and everything below them log with the request ID
			// attached via context.
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))
			err := next(c)

			log.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return err
		}
	})

	s := &Server{
		echo:      e,
		extractor: extractor,
		driver:    driver,
		errs:      errs,
		log:       log.Named("httpapi"),
		config:    cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.echo.POST("/extract-specification", s.handleExtract)
	s.echo.POST("/batch-extract", s.handleBatchExtract)
	s.echo.GET("/error-logs", s.handleErrorLogs)
	s.echo.DELETE("/error-logs", s.handleClearErrorLogs)
}

// ExtractRequest is the body for POST /extract-specification.
type ExtractRequest struct {
	Codebase string `json:"codebase"`
}

// BatchRequest is the body for POST /batch-extract.
type BatchRequest struct {
	Codebases []string `json:"codebases"`
}

// HealthResponse is the body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleExtract runs the pipeline for one codebase and returns the
// specification document.
func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Codebase == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "codebase field is required")
	}

	spec, err := s.extractor.Run(c.Request().Context(), req.Codebase)
	if err != nil {
		s.log.Warn(c.Request().Context(), "extraction rejected",
			zap.String("codebase", req.Codebase),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, spec)
}

// handleBatchExtract runs the batch driver over the given codebases.
// Individual failures are reported in their result slots; the endpoint
// itself fails only on a bad request.
func (s *Server) handleBatchExtract(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Codebases) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "codebases field is required")
	}

	results := s.driver.Run(c.Request().Context(), req.Codebases)
	return c.JSON(http.StatusOK, results)
}

// handleErrorLogs returns the collector's grouped error report.
func (s *Server) handleErrorLogs(c echo.Context) error {
	if s.errs == nil {
		return c.JSON(http.StatusOK, errlog.Report{Errors: map[string][]errlog.ReportEntry{}})
	}
	return c.JSON(http.StatusOK, s.errs.Export())
}

// handleClearErrorLogs discards collected errors between runs.
func (s *Server) handleClearErrorLogs(c echo.Context) error {
	if s.errs != nil {
		s.errs.Clear()
	}
	return c.NoContent(http.StatusNoContent)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.log.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
