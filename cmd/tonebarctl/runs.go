package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tonebar/internal/model"
	"tonebar/pkg/tonebar"
)

const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit     int
		fromIndex bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List optimization runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fromIndex {
				client, err := a.client()
				if err != nil {
					return err
				}
				defer func() {
					_ = client.Close()
				}()
				entries, err := client.ArtifactIndex()
				if err != nil {
					return err
				}
				if limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
				if len(entries) == 0 {
					fmt.Fprintln(a.out, "no runs")
				}
				for _, e := range entries {
					printRunLine(a, e.RunID, e.CreatedAtUTC, e.Material, e.NumCuts, e.Generations, e.StopReason, e.TuningError)
				}
				return nil
			}

			return a.withClient(cmd.Context(), func(client *tonebar.Client) error {
				items, err := client.Runs(cmd.Context(), tonebar.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(a.out, "no runs")
				}
				for _, item := range items {
					printRunLine(a, item.RunID, item.CreatedAtUTC, item.Material, item.NumCuts, item.Generations, item.StopReason, item.TuningError)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().BoolVar(&fromIndex, "index", false, "read the artifacts directory index instead of the store")
	return cmd
}

func printRunLine(a *app, id, createdAt, material string, cuts, generations int, stop model.StopReason, tuningError float64) {
	when := createdAt
	if t, err := time.Parse(createdAtLayout, createdAt); err == nil {
		when = humanize.Time(t)
	}
	fmt.Fprintf(a.out, "%s  %-16s %-10s cuts=%d gens=%-5d %-15s error=%.4f\n",
		id, when, material, cuts, generations, stop, tuningError)
}

func newExportCmd(a *app) *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the artifacts of a stored run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd.Context(), func(client *tonebar.Client) error {
				summary, err := client.Export(cmd.Context(), tonebar.ExportRequest{
					RunID:  runID,
					Latest: latest,
					OutDir: outDir,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "exported run=%s dir=%s\n", summary.RunID, summary.Directory)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id to export")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the newest run")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default: exports dir)")
	return cmd
}
