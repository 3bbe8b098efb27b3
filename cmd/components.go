// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/compliance"
	"github.com/xkilldash9x/securai/internal/config"
	"github.com/xkilldash9x/securai/internal/drafter"
	"github.com/xkilldash9x/securai/internal/llmclient"
	"github.com/xkilldash9x/securai/internal/normalize"
	"github.com/xkilldash9x/securai/internal/orchestrator"
	"github.com/xkilldash9x/securai/internal/progress"
	"github.com/xkilldash9x/securai/internal/reporting"
	"github.com/xkilldash9x/securai/internal/tracking"
)

// components holds the initialized pipeline services shared by the generate
// and serve commands.
type components struct {
	Store        schemas.TrackingStore
	Retriever    *compliance.Retriever
	Hub          *progress.Hub
	Router       *llmclient.LLMRouter
	Drafter      *drafter.Drafter
	Orchestrator *orchestrator.Orchestrator

	logger *zap.Logger
}

// componentOptions adjusts initialization per command.
type componentOptions struct {
	// optionalLLM turns a missing LLM configuration into a warning and a nil
	// Orchestrator instead of an initialization failure. The API server uses
	// this so tracking and coverage endpoints stay available without
	// credentials.
	optionalLLM bool
}

// Shutdown gracefully closes all components. It is safe to call on a
// partially initialized struct after a failed newComponents.
func (c *components) Shutdown() {
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.Router != nil {
		if err := c.Router.Close(); err != nil {
			c.logger.Warn("Error closing LLM clients", zap.Error(err))
		}
	}
	if c.Store != nil {
		c.Store.Close()
	}
}

// newComponents handles dependency injection for a pipeline run. On failure
// it returns the partially built struct alongside the error so the caller
// can release whatever was already opened.
func newComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (*components, error) {
	comps := &components{logger: logger}

	// 1. Tracking store
	store, err := tracking.New(ctx, cfg.Tracking, logger)
	if err != nil {
		return comps, fmt.Errorf("failed to initialize tracking store: %w", err)
	}
	comps.Store = store

	// 2. Compliance retriever. Construction never fails; an unusable index
	// just leaves the retriever in degraded mode.
	comps.Retriever = compliance.New(cfg.Retriever, logger)

	// 3. Progress hub
	comps.Hub = progress.NewHub(logger, cfg.API.ProgressBuffer)

	// 4. LLM router
	router, err := llmclient.NewRouterFromConfig(ctx, cfg.LLM, logger)
	if err != nil {
		if opts.optionalLLM {
			logger.Warn("LLM router unavailable, policy generation disabled", zap.Error(err))
			return comps, nil
		}
		return comps, fmt.Errorf("failed to initialize LLM router: %w", err)
	}
	comps.Router = router

	// 5. Policy drafter
	fast := cfg.LLM.Models[cfg.LLM.DefaultFastModel]
	powerful := cfg.LLM.Models[cfg.LLM.DefaultPowerfulModel]
	pd, err := drafter.New(router, comps.Retriever, drafter.Config{
		Timeout:       cfg.Pipeline.DraftTimeout,
		FastModel:     fast.Model,
		PowerfulModel: powerful.Model,
	}, logger)
	if err != nil {
		return comps, fmt.Errorf("failed to initialize policy drafter: %w", err)
	}
	comps.Drafter = pd

	// 6. Orchestrator
	orch, err := orchestrator.New(
		cfg.Pipeline,
		logger,
		normalize.New(logger),
		pd,
		store,
		reporting.NewWriter(cfg.Pipeline.OutputDir, logger),
		comps.Hub,
	)
	if err != nil {
		return comps, fmt.Errorf("failed to create orchestrator: %w", err)
	}
	comps.Orchestrator = orch

	return comps, nil
}
