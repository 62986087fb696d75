package dispatch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolwire/pkg/protocol"
)

// RunnerOptions configure plan execution.
type RunnerOptions struct {
	// FailFast stops dispatching after the first failed step. Steps
	// after the failure still receive envelopes so the output stays
	// index-aligned with the plan.
	FailFast bool
}

// Runner executes a plan's actions strictly in order through a
// dispatcher, producing exactly one envelope per action.
type Runner struct {
	dispatcher *Dispatcher
	opts       RunnerOptions
}

// NewRunner creates a plan runner.
func NewRunner(dispatcher *Dispatcher, opts RunnerOptions) *Runner {
	return &Runner{dispatcher: dispatcher, opts: opts}
}

// Run dispatches every action in plan order. A later action is not
// started until the prior one's envelope is produced, preserving any
// causal ordering between steps. By default failures do not
// short-circuit: the caller always receives a complete per-step trace,
// one envelope per action, index-aligned with the input.
func (r *Runner) Run(ctx context.Context, plan *protocol.Plan) []protocol.Envelope {
	results := make([]protocol.Envelope, 0, len(plan.Actions))

	for i, action := range plan.Actions {
		env := r.dispatcher.Dispatch(ctx, action)
		results = append(results, env)

		if !env.OK {
			log.Warn().
				Str("plan_id", plan.ID).
				Int("step", i).
				Str("tool", action.Tool).
				Str("action", action.Name).
				Str("error_type", env.ErrorType()).
				Msg("Plan step failed")

			if r.opts.FailFast {
				for j := i + 1; j < len(plan.Actions); j++ {
					results = append(results, protocol.Failure(env.ErrorType(),
						fmt.Sprintf("step %d not dispatched: step %d failed and fail-fast is enabled", j, i)))
				}
				break
			}
		}
	}

	log.Info().
		Str("plan_id", plan.ID).
		Int("steps", len(plan.Actions)).
		Msg("Plan execution finished")

	return results
}
