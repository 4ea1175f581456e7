package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/regionrouter/internal/control"
	redisclient "github.com/vietddude/regionrouter/internal/infra/redis"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show endpoint availability and recent outcomes",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of recent outcomes to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := controlConfig()
	if err != nil {
		return err
	}
	cfg.Port = 0
	cfg.AutoUpdate = false

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize router", "error", err)
		return err
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "REGION\tKIND\tPROFILE\tSTATUS\tAVAILABLE AT")
	for _, ep := range app.Registry().AllEndpoints() {
		kind := "normal"
		if ep.IsPrimary {
			kind = "primary"
		}
		status, at := "available", "-"
		if !ep.IsAvailable(now) {
			status = "cooling"
			at = ep.NextAvailableAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ep.Region, kind, ep.ProfilePrefix, status, at)
	}
	_ = w.Flush()

	if rf, ok := app.Journal().(interface {
		RegionFailures(context.Context) ([]redisclient.RegionFailure, error)
	}); ok {
		failures, err := rf.RegionFailures(ctx)
		if err != nil {
			slog.Warn("Failed to read region failures", "error", err)
		} else if len(failures) > 0 {
			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
			_, _ = fmt.Fprintln(w, "REGION\tLAST FAILURE\tUNTIL\tERROR")
			for _, f := range failures {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Region, f.At.Format(time.RFC3339), f.Until.Format(time.RFC3339), f.Error)
			}
			_ = w.Flush()
		}
	}

	if cfg.Journal.Backend == "" || cfg.Journal.Backend == control.JournalMemory {
		fmt.Println("\nmemory journal: recent outcomes are only kept inside a running server")
		return nil
	}

	outcomes, err := app.Journal().RecentOutcomes(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to query outcomes", "error", err)
		return err
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "REQUEST\tOUTCOME\tREGION\tFAILED REGIONS\tATTEMPTS\tFINISHED")
	for _, o := range outcomes {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.RequestID, o.Kind, o.Region, strings.Join(o.FailedRegions, ","), o.AttemptCount, o.FinishedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
	return nil
}
