package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/toolwire/internal/metrics"
	"github.com/harun/toolwire/pkg/protocol"
)

var (
	execTool   string
	execAction string
	execArgs   string
)

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Dispatch a single action to a capability server",
	Long: `Dispatch one action to its capability server, bypassing the planner,
and print the result envelope. Arguments are given as a JSON object.`,
	Example: `  toolwire exec --tool system --action exec --args '{"cmd": "ls -la"}'
  toolwire exec --tool filesystem --action read_file --args '{"path": "notes.txt"}'`,
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&execTool, "tool", "", "tool name (required)")
	execCmd.Flags().StringVar(&execAction, "action", "", "action name (required)")
	execCmd.Flags().StringVar(&execArgs, "args", "{}", "action arguments as a JSON object")
	execCmd.MarkFlagRequired("tool")
	execCmd.MarkFlagRequired("action")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lg, err := setupLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer lg.Close()

	var actionArgs map[string]any
	if err := json.Unmarshal([]byte(execArgs), &actionArgs); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	dispatcher := newDispatcher(cfg, metrics.New())

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Duration(cfg.HTTP.TimeoutSec)*time.Second)
	defer cancel()

	env := dispatcher.Dispatch(ctx, protocol.Action{
		Tool: execTool,
		Name: execAction,
		Args: actionArgs,
	})

	out, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !env.OK {
		return fmt.Errorf("action failed: %s", env.ErrorType())
	}
	return nil
}
