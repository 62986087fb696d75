package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolwire/internal/config"
	"github.com/harun/toolwire/internal/logger"
	"github.com/harun/toolwire/internal/metrics"
	"github.com/harun/toolwire/pkg/dispatch"
	"github.com/harun/toolwire/pkg/planner"
	"github.com/harun/toolwire/pkg/protocol"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "toolwire",
	Short: "Toolwire - local tool execution protocol",
	Long: `Toolwire turns natural-language instructions into validated action
plans and dispatches them to local capability servers over a uniform
HTTP envelope contract. It also ships the system capability server
with a sandboxed, policy-checked exec tool.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.toolwire/toolwire.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig loads the configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// setupLogger initializes the global logger from config.
func setupLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
}

// newDispatcher builds a dispatcher from config with per-dispatch
// metrics attached.
func newDispatcher(cfg *config.Config, m *metrics.Metrics) *dispatch.Dispatcher {
	d := dispatch.New(dispatch.Config{
		Endpoints: cfg.Endpoints,
		Timeout:   time.Duration(cfg.HTTP.TimeoutSec) * time.Second,
	})
	d.SetObserver(m)
	return d
}

// generatePlan plans an instruction and counts the outcome.
func generatePlan(ctx context.Context, p *planner.Planner, m *metrics.Metrics, instruction string) (*protocol.Plan, error) {
	plan, err := p.Plan(ctx, instruction)
	if err != nil {
		m.RecordPlan("error")
		return nil, err
	}
	m.RecordPlan("ok")
	return plan, nil
}
