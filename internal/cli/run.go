package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolwire/internal/metrics"
	"github.com/harun/toolwire/pkg/dispatch"
)

var runFailFast bool

var runCmd = &cobra.Command{
	Use:   "run [instruction]",
	Short: "Plan and execute a natural-language instruction",
	Long: `Generate a validated action plan from a natural-language instruction,
dispatch every step to its capability server in order, and print one
result envelope per step as a JSON array.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "stop dispatching after the first failed step")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lg, err := setupLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer lg.Close()

	p, err := buildPlanner(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	m := metrics.New()

	instruction := strings.Join(args, " ")
	plan, err := generatePlan(ctx, p, m, instruction)
	if err != nil {
		return err
	}

	runner := dispatch.NewRunner(newDispatcher(cfg, m), dispatch.RunnerOptions{FailFast: runFailFast})
	results := runner.Run(ctx, plan)

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	for _, env := range results {
		if !env.OK {
			return fmt.Errorf("plan finished with failed steps")
		}
	}
	return nil
}
