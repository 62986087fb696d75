package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolwire/internal/config"
	"github.com/harun/toolwire/internal/metrics"
	"github.com/harun/toolwire/pkg/planner"
	"github.com/harun/toolwire/pkg/toolschema"
)

var planCmd = &cobra.Command{
	Use:   "plan [instruction]",
	Short: "Generate an action plan without executing it",
	Long: `Generate a validated action plan from a natural-language instruction
and print it as JSON. Nothing is dispatched.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
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

	// Planning talks to a remote provider; bound it generously.
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	plan, err := generatePlan(ctx, p, metrics.New(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// buildPlanner wires the first working provider profile into a planner
// over the built-in tool schema.
func buildPlanner(cfg *config.Config) (*planner.Planner, error) {
	profiles := cfg.OrderedProfiles()
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no AI provider profiles configured")
	}

	var lastErr error
	for _, p := range profiles {
		gen, err := planner.NewGenerator(planner.Profile{
			Provider: p.Provider,
			Model:    p.Model,
			APIKey:   p.APIKey,
		})
		if err != nil {
			lastErr = err
			continue
		}
		return planner.New(gen, toolschema.Default()), nil
	}

	return nil, fmt.Errorf("no usable AI provider profile: %w", lastErr)
}
