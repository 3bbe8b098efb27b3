// File: cmd/generate.go
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/observability"
	"github.com/xkilldash9x/securai/internal/orchestrator"
)

// newGenerateCmd creates and configures the `generate` command.
func newGenerateCmd() *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate remediation policies from scan reports",
		Long: `Generate parses the given SAST, SCA and DAST reports, drafts one
remediation policy per finding, scores the drafts, records them in the
tracking store, and writes run reports to the output directory.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			for key, flag := range map[string]string{
				"pipeline.workers":        "workers",
				"pipeline.max_per_type":   "max-per-type",
				"pipeline.output_dir":     "output-dir",
				"pipeline.expertise":      "expertise",
				"pipeline.reference_path": "reference",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Context passed from main is signal-aware; a Ctrl-C drains the
			// worker pool and the run still persists its partial results.
			ctx := cmd.Context()
			logger := observability.GetLogger()

			in := orchestrator.Inputs{}
			in.SASTPath, _ = cmd.Flags().GetString("sast")
			in.SCAPath, _ = cmd.Flags().GetString("sca")
			in.DASTPath, _ = cmd.Flags().GetString("dast")
			if in.SASTPath == "" && in.SCAPath == "" && in.DASTPath == "" {
				return fmt.Errorf("at least one report file must be provided (--sast, --sca or --dast)")
			}

			// Re-unmarshal so the flag bindings from PreRunE take effect.
			cfg := appConfig
			if err := viper.Unmarshal(cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}

			actor, _ := cmd.Flags().GetString("actor")
			opts := schemas.RunOptions{
				MaxPerType:    cfg.Pipeline.MaxPerType,
				Expertise:     schemas.ExpertiseLevel(cfg.Pipeline.Expertise),
				ReferencePath: cfg.Pipeline.ReferencePath,
				Actor:         actor,
			}

			logger.Info("Starting policy generation run",
				zap.String("sast", in.SASTPath),
				zap.String("sca", in.SCAPath),
				zap.String("dast", in.DASTPath),
				zap.Int("workers", cfg.Pipeline.Workers),
				zap.Int("max_per_type", opts.MaxPerType),
				zap.String("expertise", string(opts.Expertise)),
			)

			comps, err := newComponents(ctx, cfg, logger, componentOptions{})
			if err != nil {
				if comps != nil {
					comps.Shutdown()
				}
				return fmt.Errorf("failed to initialize pipeline components: %w", err)
			}
			defer comps.Shutdown()

			// Mirror the run's progress events onto the terminal while it
			// executes. Unsubscribing closes the channel, which ends the
			// printer goroutine once it has drained.
			events, unsubscribe := comps.Hub.Subscribe()
			printerDone := make(chan struct{})
			go func() {
				defer close(printerDone)
				printProgress(cmd.OutOrStdout(), events)
			}()

			result, err := comps.Orchestrator.Run(ctx, in, opts)
			unsubscribe()
			<-printerDone
			if err != nil {
				logger.Error("Policy generation run failed", zap.Error(err))
				return err
			}

			printRunSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	// Report inputs.
	generateCmd.Flags().String("sast", "", "Path to a SAST report (JSON).")
	generateCmd.Flags().String("sca", "", "Path to an SCA report (JSON).")
	generateCmd.Flags().String("dast", "", "Path to a DAST report (JSON).")

	// Pipeline overrides.
	generateCmd.Flags().IntP("workers", "j", 0, "Number of concurrent drafting workers. (Overrides config/env)")
	generateCmd.Flags().Int("max-per-type", 0, "Cap findings per source type, keeping the highest severity. 0 disables the cap.")
	generateCmd.Flags().StringP("output-dir", "o", "", "Directory for the run reports. (Overrides config/env)")
	generateCmd.Flags().String("expertise", "", "Audience for the drafted policies: beginner, intermediate or advanced.")
	generateCmd.Flags().String("reference", "", "Path to a reference policy used for quality scoring.")
	generateCmd.Flags().String("actor", "", "Name recorded as the creator on tracking records.")

	return generateCmd
}

// printProgress renders pipeline progress events as terminal lines until the
// event channel closes.
func printProgress(w io.Writer, events <-chan schemas.ProgressEvent) {
	for ev := range events {
		if line, ok := formatItemLine(ev); ok {
			fmt.Fprintln(w, line)
		}
	}
}

// formatItemLine turns a progress event into a one-line terminal update. The
// stream stays readable by only surfacing per-item outcomes: scoring marks
// an item finished, and any error ends it early.
func formatItemLine(ev schemas.ProgressEvent) (string, bool) {
	if ev.ItemID == "" {
		return "", false
	}

	var prefix string
	if done, total, ok := progressCounts(ev.Payload); ok {
		prefix = fmt.Sprintf("[%d/%d] ", done, total)
	}

	title := ev.ItemID
	if t, ok := ev.Payload["current_vuln"].(string); ok && t != "" {
		title = t
	}

	switch {
	case ev.Status == schemas.StatusError:
		phase := strings.ToLower(string(ev.Phase))
		return fmt.Sprintf("  %s%s failed during %s: %s", prefix, title, phase, ev.Message), true
	case ev.Phase == schemas.PhaseScoring && ev.Status == schemas.StatusCompleted:
		return fmt.Sprintf("  %s%s: %s", prefix, title, ev.Message), true
	default:
		return "", false
	}
}

// progressCounts extracts the processed/total counters the pipeline attaches
// to per-item events. Events arrive in-process, so the payload values are
// still plain ints.
func progressCounts(payload map[string]any) (int, int, bool) {
	done, ok := payload["processed"].(int)
	if !ok {
		return 0, 0, false
	}
	total, ok := payload["total"].(int)
	if !ok || total <= 0 {
		return 0, 0, false
	}
	return done, total, true
}

// printRunSummary is the operator-facing wrap-up printed after a run.
func printRunSummary(w io.Writer, result *schemas.RunResult) {
	fmt.Fprintf(w, "\nRun complete. Run ID: %s\n", result.RunID)
	fmt.Fprintf(w, "Parsed %d findings (SAST %d, SCA %d, DAST %d)\n",
		result.TotalParsed(),
		result.Counts[schemas.SourceSAST],
		result.Counts[schemas.SourceSCA],
		result.Counts[schemas.SourceDAST],
	)
	fmt.Fprintf(w, "Generated %d policies\n", len(result.Policies))

	if result.DegradedRetrieval {
		fmt.Fprintln(w, "Compliance retrieval ran degraded; some policies cite no retrieved controls.")
	}
	if result.Cancelled {
		fmt.Fprintln(w, "Run was cancelled; results are partial.")
	}

	if len(result.ItemErrors) > 0 {
		fmt.Fprintf(w, "%d item(s) failed:\n", len(result.ItemErrors))
		for _, ie := range result.ItemErrors {
			fmt.Fprintf(w, "  - %s (%s): %s\n", ie.Title, strings.ToLower(string(ie.Phase)), ie.Message)
		}
	}

	if len(result.OutputPaths) > 0 {
		fmt.Fprintln(w, "Reports written:")
		for _, p := range result.OutputPaths {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
}
