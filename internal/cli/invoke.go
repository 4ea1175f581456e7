package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/regionrouter/internal/control"
	"github.com/vietddude/regionrouter/internal/core/domain"
	"github.com/vietddude/regionrouter/internal/infra/rpc"
)

var (
	invokePrompt    string
	invokeSystem    string
	invokePayload   string
	invokeMaxTokens int
	invokeDashboard bool
)

var invokeCmd = &cobra.Command{
	Use:   "invoke [api]",
	Short: "Send one request through the router and print the response and failed regions",
	Long: `Send one logical request through the router.

api is one of converse, converse_stream, invoke_model or
invoke_model_with_response_stream and overrides collaborator.api.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokePrompt, "prompt", "Say Hello", "prompt text")
	invokeCmd.Flags().StringVar(&invokeSystem, "system", "", "system prompt")
	invokeCmd.Flags().StringVar(&invokePayload, "payload", "", "raw JSON request body, overrides --prompt")
	invokeCmd.Flags().IntVar(&invokeMaxTokens, "max-tokens", 512, "maximum tokens to generate")
	invokeCmd.Flags().BoolVar(&invokeDashboard, "dashboard", false, "print the region monitor after the request")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	cfg, err := controlConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		api, err := rpc.ParseAPI(args[0])
		if err != nil {
			return err
		}
		cfg.Invoker.API = api
	}
	cfg.Port = 0

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := control.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize router", "error", err)
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := app.Stop(stopCtx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	client := app.Client()
	client.SetInferenceConfig(rpc.InferenceConfig{MaxTokens: invokeMaxTokens})

	var out *domain.Outcome
	if invokePayload != "" {
		if !json.Valid([]byte(invokePayload)) {
			return fmt.Errorf("--payload is not valid JSON")
		}
		out, err = client.Call(ctx, json.RawMessage(invokePayload))
	} else {
		out, err = client.Prompt(ctx, invokePrompt, invokeSystem)
	}

	printOutcome(out, err)
	if invokeDashboard {
		fmt.Print(client.PrintMonitorDashboard())
	}
	return err
}

func printOutcome(out *domain.Outcome, err error) {
	if out == nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}

	fmt.Printf("Request:        %s\n", out.RequestID)
	fmt.Printf("Outcome:        %s\n", out.Kind)
	if out.Region != "" {
		fmt.Printf("Region:         %s\n", out.Region)
	}
	fmt.Printf("Failed regions: [%s]\n", strings.Join(out.FailedRegions, ", "))
	fmt.Printf("Attempts:       %d\n", len(out.Attempts))
	fmt.Printf("Elapsed:        %s\n", out.FinishedAt.Sub(out.StartedAt).Round(time.Millisecond))

	if err != nil {
		fmt.Printf("Error:          %v\n", err)
		return
	}

	if content := rpc.ContentOf(out); content != "" {
		fmt.Printf("\n%s\n", content)
		return
	}
	if resp, ok := out.Response.(*rpc.Response); ok && len(resp.Body) > 0 {
		fmt.Printf("\n%s\n", resp.Body)
	}
}
