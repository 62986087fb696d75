package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/harun/toolwire/internal/metrics"
	"github.com/harun/toolwire/pkg/audit"
	"github.com/harun/toolwire/pkg/sandbox"
	"github.com/harun/toolwire/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the system capability server",
	Long: `Start the system capability server. It exposes the sandboxed exec
tool over the uniform envelope contract, streams exec lifecycle events
on /events, and serves Prometheus metrics on /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lg, err := setupLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer lg.Close()

	// Security policy: built-in unless a policy file is configured.
	policy := sandbox.DefaultPolicy()
	if cfg.Exec.PolicyPath != "" {
		policy, err = sandbox.LoadPolicy(cfg.Exec.PolicyPath)
		if err != nil {
			return fmt.Errorf("failed to load security policy: %w", err)
		}
	}

	sb := sandbox.New(policy, sandbox.Options{
		WorkDir:        cfg.Exec.WorkDir,
		DefaultTimeout: time.Duration(cfg.Exec.DefaultTimeoutSec) * time.Second,
	})

	if cfg.Exec.PolicyPath != "" {
		watcher, err := sandbox.WatchPolicy(cfg.Exec.PolicyPath, sb.Policy())
		if err != nil {
			return fmt.Errorf("failed to watch security policy: %w", err)
		}
		defer watcher.Stop()
	}

	m := metrics.New()

	var store *audit.Store
	if cfg.Audit.Enabled {
		store, err = audit.Open(audit.Options{
			DBPath:    cfg.Audit.Path,
			Retention: time.Duration(cfg.Audit.RetentionDays) * 24 * time.Hour,
		})
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer store.Close()
		sb.SetRecorder(auditAndMetrics{store: store, metrics: m})
	} else {
		sb.SetRecorder(m)
	}

	opts := server.Options{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}
	if cfg.Server.MetricsEnabled {
		opts.MetricsHandler = m.Handler()
	}

	srv, err := server.New(opts, sb)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		return srv.Stop()
	}
}

// auditAndMetrics fans exec records out to the audit trail and the
// metrics registry.
type auditAndMetrics struct {
	store   *audit.Store
	metrics *metrics.Metrics
}

func (a auditAndMetrics) RecordExec(requestID, cmd, verdict string, exitCode int, duration time.Duration) {
	a.store.RecordExec(requestID, cmd, verdict, exitCode, duration)
	a.metrics.RecordExec(requestID, cmd, verdict, exitCode, duration)
}
