package httpapi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/compliance"
	"github.com/xkilldash9x/securai/internal/orchestrator"
	"github.com/xkilldash9x/securai/internal/tracking"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	trackingOK := true
	if _, err := s.store.Stats(c.Context()); err != nil {
		s.logger.Warn("Health check could not reach the tracking store", zap.Error(err))
		trackingOK = false
	}

	status := "healthy"
	if !trackingOK {
		status = "degraded"
	}
	return c.JSON(fiber.Map{
		"status":              status,
		"pipeline_configured": s.pipeline != nil,
		"retriever_ready":     s.retriever != nil && s.retriever.Ready(),
		"tracking_reachable":  trackingOK,
	})
}

// handleGeneratePolicies accepts up to three multipart report files, stores
// them in the upload scratch directory, and starts a pipeline run in the
// background. The response carries the run id so the client can follow the
// run on the progress stream.
func (s *Server) handleGeneratePolicies(c *fiber.Ctx) error {
	if s.pipeline == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"message": "policy generation is not configured: no LLM credentials were provided at startup",
		})
	}

	runID := uuid.NewString()

	var in orchestrator.Inputs
	uploaded := 0
	for _, part := range []struct {
		field string
		dst   *string
	}{
		{"sast_report", &in.SASTPath},
		{"sca_report", &in.SCAPath},
		{"dast_report", &in.DASTPath},
	} {
		fh, err := c.FormFile(part.field)
		if err != nil {
			continue
		}
		path := filepath.Join(s.uploadDir, fmt.Sprintf("%s_%s%s", runID, part.field, filepath.Ext(fh.Filename)))
		if err := c.SaveFile(fh, path); err != nil {
			s.logger.Error("Failed to store uploaded report", zap.String("field", part.field), zap.Error(err))
			removeUploads(s.logger, in)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "failed to store uploaded report",
			})
		}
		*part.dst = path
		uploaded++
	}
	if uploaded == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "at least one scan report file is required (sast_report, sca_report or dast_report)",
		})
	}

	opts := schemas.RunOptions{
		Expertise: schemas.ExpertiseLevel(c.FormValue("expertise")),
		Actor:     c.FormValue("actor"),
	}
	if v := c.FormValue("max_per_type"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			removeUploads(s.logger, in)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "max_per_type must be a non-negative integer",
			})
		}
		opts.MaxPerType = n
	}

	s.logger.Info("Accepted policy generation request",
		zap.String("run_id", runID),
		zap.Int("reports", uploaded),
	)
	go s.runPipeline(runID, in, opts)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success": true,
		"run_id":  runID,
	})
}

// runPipeline executes one background run and cleans up its uploads. Run
// failures surface on the progress stream; here they are only logged.
func (s *Server) runPipeline(runID string, in orchestrator.Inputs, opts schemas.RunOptions) {
	defer removeUploads(s.logger, in)

	if _, err := s.pipeline.RunWithID(s.runCtx, runID, in, opts); err != nil {
		s.logger.Error("Pipeline run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

func removeUploads(logger *zap.Logger, in orchestrator.Inputs) {
	for _, path := range []string{in.SASTPath, in.SCAPath, in.DASTPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove uploaded report", zap.String("path", path), zap.Error(err))
		}
	}
}

func (s *Server) handleListTracking(c *fiber.Ctx) error {
	records, err := s.store.List(c.Context())
	if err != nil {
		return s.storeError(c, err)
	}
	stats, err := s.store.Stats(c.Context())
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"policies": records,
		"stats":    stats,
	})
}

func (s *Server) handleGetTracking(c *fiber.Ctx) error {
	rec, err := s.store.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"policy":  rec,
	})
}

type statusUpdateRequest struct {
	Status  string `json:"status"`
	Actor   string `json:"actor"`
	Details string `json:"details"`
}

func (s *Server) handleUpdateStatus(c *fiber.Ctx) error {
	var req statusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
	}

	rec, err := s.store.UpdateStatus(c.Context(), c.Params("id"), schemas.PolicyStatus(req.Status), req.Actor, req.Details)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("status updated to %s", rec.Status),
		"policy":  rec,
	})
}

type assignmentRequest struct {
	Assignee string `json:"assignee"`
	Actor    string `json:"actor"`
}

func (s *Server) handleUpdateAssignment(c *fiber.Ctx) error {
	var req assignmentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "invalid request body: " + err.Error(),
		})
	}
	if req.Assignee == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "assignee is required",
		})
	}

	rec, err := s.store.UpdateAssignment(c.Context(), c.Params("id"), req.Assignee, req.Actor)
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("assigned to %s", rec.AssignedTo),
		"policy":  rec,
	})
}

func (s *Server) handleCoverage(c *fiber.Ctx) error {
	records, err := s.store.List(c.Context())
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(compliance.AnalyzeCoverage(records))
}

// storeError maps tracking store failures onto HTTP statuses: unknown ids
// become 404s, rejected input becomes 400s, everything else is a 500.
func (s *Server) storeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		status = fiber.StatusNotFound
	case schemas.IsValidation(err) || schemas.IsInput(err):
		status = fiber.StatusBadRequest
	default:
		s.logger.Error("Tracking store request failed", zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
	})
}
