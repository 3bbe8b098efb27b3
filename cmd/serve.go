// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/internal/httpapi"
	"github.com/xkilldash9x/securai/internal/observability"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the securai HTTP API",
		Long: `Serve exposes policy generation, live progress streaming, policy
tracking and compliance coverage over HTTP. Without LLM credentials the
server still starts; generation endpoints respond 503 while tracking and
coverage stay available.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("api.listen_addr", cmd.Flags().Lookup("listen"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-unmarshal so the flag bindings from PreRunE take effect.
			cfg := appConfig
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}

			comps, err := newComponents(ctx, cfg, logger, componentOptions{optionalLLM: true})
			if err != nil {
				if comps != nil {
					comps.Shutdown()
				}
				return fmt.Errorf("failed to initialize API components: %w", err)
			}
			defer comps.Shutdown()

			// A nil *Orchestrator has to stay a nil interface value so the
			// server can tell that generation is unconfigured.
			var pipeline httpapi.Pipeline
			if comps.Orchestrator != nil {
				pipeline = comps.Orchestrator
			} else {
				logger.Warn("LLM is not configured; generation endpoints return 503. Set SECURAI_GROQ_API_KEY to enable them.")
			}

			srv, err := httpapi.New(cfg.API, logger, pipeline, comps.Store, comps.Hub, comps.Retriever)
			if err != nil {
				return fmt.Errorf("failed to initialize API server: %w", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Listen()
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("API server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Shutting down API server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("API server shutdown was not clean", zap.Error(err))
			}
			<-errCh
			return nil
		},
	}

	serveCmd.Flags().String("listen", "", "Address for the API server to listen on, e.g. :8080. (Overrides config/env)")

	return serveCmd
}
