package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/regionrouter/internal/infra/storage/file"
)

var resetCooldownCmd = &cobra.Command{
	Use:   "reset-cooldown [region...]",
	Short: "Clear cool-down windows in the endpoint file (all regions when none are given)",
	RunE:  runResetCooldown,
}

func init() {
	rootCmd.AddCommand(resetCooldownCmd)
}

func runResetCooldown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}
	if cfg.EndpointsFile == "" {
		return fmt.Errorf("endpoints_file is not configured")
	}

	n, err := file.NewStateRepo(cfg.EndpointsFile).ResetCooldowns(context.Background(), args...)
	if err != nil {
		slog.Error("Failed to reset cool-downs", "error", err)
		return err
	}

	fmt.Printf("Reset %d cool-down(s) in %s\n", n, cfg.EndpointsFile)
	return nil
}
