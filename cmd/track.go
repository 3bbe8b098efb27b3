// File: cmd/track.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/securai/api/schemas"
	"github.com/xkilldash9x/securai/internal/compliance"
	"github.com/xkilldash9x/securai/internal/observability"
	"github.com/xkilldash9x/securai/internal/reporting"
	"github.com/xkilldash9x/securai/internal/tracking"
)

const titleColumnWidth = 48

// newTrackCmd groups the policy tracking subcommands.
func newTrackCmd() *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Inspect and update tracked policies",
		Long: `Track works with the remediation lifecycle of generated policies:
list them, move them between lifecycle states, assign owners, and report
compliance control coverage.`,
	}

	trackCmd.AddCommand(newTrackListCmd())
	trackCmd.AddCommand(newTrackStatusCmd())
	trackCmd.AddCommand(newTrackAssignCmd())
	trackCmd.AddCommand(newTrackCoverageCmd())

	return trackCmd
}

// openTrackingStore opens the configured tracking backend for one
// subcommand invocation.
func openTrackingStore(ctx context.Context) (schemas.TrackingStore, error) {
	store, err := tracking.New(ctx, appConfig.Tracking, observability.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open tracking store: %w", err)
	}
	return store, nil
}

func newTrackListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openTrackingStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(ctx)
			if err != nil {
				return err
			}
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}

			if filter, _ := cmd.Flags().GetString("status"); filter != "" {
				status := schemas.PolicyStatus(strings.ToUpper(filter))
				if !schemas.ValidPolicyStatus(status) {
					return fmt.Errorf("unknown status %q", filter)
				}
				kept := records[:0]
				for _, r := range records {
					if r.Status == status {
						kept = append(kept, r)
					}
				}
				records = kept
			}

			renderTrackingTable(cmd.OutOrStdout(), records, stats, time.Now().UTC())
			return nil
		},
	}

	listCmd.Flags().String("status", "", "Only show policies in this lifecycle state. The summary still covers the whole store.")

	return listCmd
}

func newTrackStatusCmd() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status <policy-id> <status>",
		Short: "Move a policy to a new lifecycle state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, _ := cmd.Flags().GetString("actor")
			details, _ := cmd.Flags().GetString("details")

			store, err := openTrackingStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			status := schemas.PolicyStatus(strings.ToUpper(args[1]))
			rec, err := store.UpdateStatus(ctx, args[0], status, actor, details)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Policy %s moved to %s\n", rec.PolicyID, rec.Status)
			return nil
		},
	}

	statusCmd.Flags().String("actor", "user", "Name recorded on the timeline entry.")
	statusCmd.Flags().String("details", "", "Free-form note recorded on the timeline entry.")

	return statusCmd
}

func newTrackAssignCmd() *cobra.Command {
	assignCmd := &cobra.Command{
		Use:   "assign <policy-id> <assignee>",
		Short: "Assign a policy to an owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			actor, _ := cmd.Flags().GetString("actor")

			if args[1] == "" {
				return fmt.Errorf("assignee cannot be empty")
			}

			store, err := openTrackingStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.UpdateAssignment(ctx, args[0], args[1], actor)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Policy %s assigned to %s\n", rec.PolicyID, rec.AssignedTo)
			return nil
		},
	}

	assignCmd.Flags().String("actor", "user", "Name recorded on the timeline entry.")

	return assignCmd
}

func newTrackCoverageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "coverage",
		Short: "Report NIST CSF and ISO 27001 control coverage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openTrackingStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(ctx)
			if err != nil {
				return err
			}

			report := compliance.AnalyzeCoverage(records)
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderCoverage(report))
			return nil
		},
	}
}

// renderTrackingTable writes the policy table followed by a one-line store
// summary.
func renderTrackingTable(w io.Writer, records []schemas.TrackingRecord, stats *schemas.TrackingStats, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No tracked policies.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "POLICY ID\tTITLE\tSEVERITY\tSTATUS\tASSIGNEE\tDUE")
	for _, r := range records {
		due := r.DueDate.Format("2006-01-02")
		if r.Overdue(now) {
			due += " (overdue)"
		}
		assignee := r.AssignedTo
		if assignee == "" {
			assignee = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.PolicyID, truncateTitle(r.VulnerabilityTitle, titleColumnWidth), r.Severity, r.Status, assignee, due)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d policies, %d overdue, %.1f%% complete\n",
		stats.Total, stats.Overdue, stats.CompletionRate)
}

// truncateTitle keeps table rows on one line without splitting a
// multi-byte rune.
func truncateTitle(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
