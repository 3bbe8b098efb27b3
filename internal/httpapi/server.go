// Package httpapi exposes the generation pipeline and the tracking store
// over HTTP: multipart report upload, a server-sent-events progress stream,
// tracking record mutation, and compliance coverage reporting.
package httpapi

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/config"
	"github.com/xkilldash9x/securai/internal/orchestrator"
	"github.com/xkilldash9x/securai/internal/progress"
)

const (
	maxUploadBytes    = 50 * 1024 * 1024
	readTimeout       = 60 * time.Second
	heartbeatInterval = 15 * time.Second
)

// Pipeline runs policy generation for the upload endpoint. It is satisfied
// by *orchestrator.Orchestrator and left nil when the service starts without
// LLM credentials, in which case uploads are refused with a 503.
type Pipeline interface {
	RunWithID(ctx context.Context, runID string, in orchestrator.Inputs, opts schemas.RunOptions) (*schemas.RunResult, error)
}

// Server wires the pipeline, tracking store, and progress hub into a fiber
// application. Pipeline runs started over HTTP outlive their triggering
// request; Shutdown cancels them.
type Server struct {
	cfg       config.APIConfig
	logger    *zap.Logger
	app       *fiber.App
	pipeline  Pipeline
	store     schemas.TrackingStore
	hub       *progress.Hub
	retriever schemas.ContextRetriever

	runCtx    context.Context
	runCancel context.CancelFunc
	uploadDir string
}

// New builds the server. pipeline and retriever may be nil: a nil pipeline
// turns the generate endpoint into a 503, a nil retriever reports the
// compliance index as not ready on /health. store and hub are mandatory.
func New(cfg config.APIConfig, logger *zap.Logger, pipeline Pipeline, store schemas.TrackingStore, hub *progress.Hub, retriever schemas.ContextRetriever) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		return nil, schemas.NewValidationError("tracking store cannot be nil")
	}
	if hub == nil {
		return nil, schemas.NewValidationError("progress hub cannot be nil")
	}

	uploadDir, err := os.MkdirTemp("", "securai-uploads-*")
	if err != nil {
		return nil, err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		logger:    logger.Named("api"),
		pipeline:  pipeline,
		store:     store,
		hub:       hub,
		retriever: retriever,
		runCtx:    runCtx,
		runCancel: runCancel,
		uploadDir: uploadDir,
	}

	app := fiber.New(fiber.Config{
		AppName:               "securai API",
		BodyLimit:             maxUploadBytes,
		ReadTimeout:           readTimeout,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	app.Use(fiberrecover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, PUT, OPTIONS",
	}))

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Post("/generate-policies", s.handleGeneratePolicies)
	api.Get("/progress/stream", s.handleProgressStream)
	api.Get("/policy-tracking", s.handleListTracking)
	api.Get("/policy-tracking/:id", s.handleGetTracking)
	api.Put("/policy-tracking/:id/status", s.handleUpdateStatus)
	api.Put("/policy-tracking/:id/assign", s.handleUpdateAssignment)
	api.Get("/compliance/coverage", s.handleCoverage)

	s.app = app
	return s, nil
}

// Listen blocks serving HTTP on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.logger.Info("API server listening", zap.String("addr", s.cfg.ListenAddr))
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown stops the listener, cancels in-flight pipeline runs, and removes
// the upload scratch directory.
func (s *Server) Shutdown(ctx context.Context) error {
	s.runCancel()
	err := s.app.ShutdownWithContext(ctx)
	if rmErr := os.RemoveAll(s.uploadDir); rmErr != nil {
		s.logger.Warn("Failed to remove upload directory", zap.String("dir", s.uploadDir), zap.Error(rmErr))
	}
	return err
}
