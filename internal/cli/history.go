package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raine/hotpotato/internal/app"
	"github.com/raine/hotpotato/internal/apperr"
	"github.com/raine/hotpotato/internal/vision"
)

func (c *cli) scanCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "scan <image>...",
		Short: "Identify the items in several photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				out := cmd.OutOrStdout()
				printMuted(out, "Scanning %s...", pluralize("photo", "photos", len(args)))

				failed := 0
				for _, r := range vision.Scan(cmd.Context(), a.Vision, args, concurrency) {
					if r.Err != nil {
						failed++
						fmt.Fprintf(out, "%s  %s\n", r.ImageRef, errorStyle.Render(apperr.Message(r.Err)))
						continue
					}
					fmt.Fprintf(out, "%s  %s\n", r.ImageRef, renderDetection(r.Detection))
				}
				if failed == len(args) {
					return apperr.New(apperr.KindRemote, "No photos could be scanned")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", vision.DefaultScanConcurrency, "photos analyzed at once")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit int
	var prune time.Duration
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent listing runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(a *app.App) error {
				out := cmd.OutOrStdout()
				if prune > 0 {
					n, err := a.Store.DeleteRunsBefore(time.Now().Add(-prune))
					if err != nil {
						return err
					}
					printSuccess(out, "Removed %s older than %s", pluralize("run", "runs", int(n)), prune)
					return nil
				}

				runs, err := a.Store.GetRecentRuns(limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					printMuted(out, "No runs yet")
					return nil
				}
				for _, r := range runs {
					fmt.Fprintln(out, renderRun(r))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this, e.g. 720h")
	return cmd
}
