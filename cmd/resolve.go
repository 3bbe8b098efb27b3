// File: cmd/resolve.go
package cmd

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/observability"
	"github.com/xkilldash9x/securai/internal/target"
)

// newResolveCmd creates and configures the `resolve` command.
func newResolveCmd() *cobra.Command {
	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a scannable DAST target for an application",
		Long: `Resolve finds a running instance of the application to point a DAST
scanner at. It probes a user-provided URL first, then derives hosted
deployment candidates from the repository, and finally builds and starts
a container from the sources. When nothing works it prints guidance
instead of failing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			req := schemas.ResolveRequest{}
			req.TargetURL, _ = cmd.Flags().GetString("url")
			req.RepoURL, _ = cmd.Flags().GetString("repo")
			req.RepoPath, _ = cmd.Flags().GetString("path")
			req.Branch, _ = cmd.Flags().GetString("branch")
			if req.TargetURL == "" && req.RepoURL == "" && req.RepoPath == "" {
				return fmt.Errorf("nothing to resolve: provide --url, --repo or --path")
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetBool("keep")

			runtime := target.NewDockerCLI(cfg.Resolver.DockerBinary, logger)
			resolver := target.NewResolver(cfg.Resolver, runtime, logger)

			result, err := resolver.Resolve(ctx, req)
			if err != nil {
				return fmt.Errorf("target resolution failed: %w", err)
			}
			if !keep {
				// Teardown is a no-op for targets that own no container.
				defer resolver.Teardown(result)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode target: %w", err)
				}
				fmt.Fprintln(out, string(data))
			} else {
				printResolution(out, result)
			}

			if result.Tier == schemas.TierContainerized {
				if keep {
					fmt.Fprintf(out, "\nContainer left running. Remove it with: %s rm -f %s\n",
						cfg.Resolver.DockerBinary, result.Detection.ContainerID)
				} else {
					fmt.Fprintln(out, "\nThe container is removed when this command exits. Pass --keep to leave it running.")
				}
			}
			return nil
		},
	}

	resolveCmd.Flags().String("url", "", "Known URL of the running application. Wins whenever it is reachable.")
	resolveCmd.Flags().String("repo", "", "GitHub repository URL of the application.")
	resolveCmd.Flags().String("path", "", "Path to a local checkout of the application.")
	resolveCmd.Flags().String("branch", "", "Branch to clone when sources are needed. Empty means the remote default.")
	resolveCmd.Flags().Bool("json", false, "Print the resolved target as JSON.")
	resolveCmd.Flags().Bool("keep", false, "Leave a containerized target running on exit.")

	return resolveCmd
}

// printResolution renders a resolved target for the terminal.
func printResolution(w io.Writer, t *schemas.ScanTarget) {
	fmt.Fprintf(w, "Resolution tier: %s\n", t.Tier)
	if t.Scannable() {
		fmt.Fprintf(w, "Scan target: %s\n", t.ResolvedURL)
	}

	d := t.Detection
	if d.Framework != "" {
		if d.Port > 0 {
			fmt.Fprintf(w, "Detected framework: %s (port %d)\n", d.Framework, d.Port)
		} else {
			fmt.Fprintf(w, "Detected framework: %s\n", d.Framework)
		}
	}
	if d.Image != "" {
		fmt.Fprintf(w, "Image: %s\n", d.Image)
	}
	if d.ContainerID != "" {
		fmt.Fprintf(w, "Container: %s\n", d.ContainerID)
	}
	if d.DockerfileGenerated {
		fmt.Fprintln(w, "Dockerfile: synthesized (the repository does not ship one)")
	}
	for _, note := range d.TierNotes {
		fmt.Fprintf(w, "  note: %s\n", note)
	}

	if len(d.Guidance) > 0 {
		fmt.Fprintln(w, "\nNo scannable target could be resolved. To make one available:")
		for _, g := range d.Guidance {
			fmt.Fprintf(w, "  - %s\n", g)
		}
	}
}
