// Package planner converts a natural-language instruction into an
// ordered action plan by asking an external completion provider for a
// strict JSON array and validating every element against the tool
// schema. Planning is atomic: any parse or validation failure aborts
// with no partial plan.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/harun/toolwire/pkg/protocol"
	"github.com/harun/toolwire/pkg/toolschema"
)

var (
	// ErrParse is returned when the provider's response is not a valid
	// JSON array
	ErrParse = errors.New("planner response is not a valid JSON array")

	// ErrSchema is returned when a parsed action violates the tool schema
	ErrSchema = errors.New("planned action violates the tool schema")
)

const systemPrompt = `You translate a user instruction into a plan of tool invocations.
Respond with strictly a JSON array of objects, each shaped as
{"tool": "<tool>", "action": "<action>", "args": {...}}.
Use only the tools, actions, and arguments declared below. Order the
array so that steps depending on earlier side effects come later.
Respond with the JSON array only, no prose.`

// Planner turns instructions into plans. Stateless per call: no
// conversation memory is kept across Plan invocations.
type Planner struct {
	gen    Generator
	schema *toolschema.Schema
}

// New creates a planner over a generator and a tool schema.
func New(gen Generator, schema *toolschema.Schema) *Planner {
	return &Planner{gen: gen, schema: schema}
}

// Plan sends the instruction plus the serialized tool schema to the
// completion provider and parses the response into a validated plan.
func (p *Planner) Plan(ctx context.Context, instruction string) (*protocol.Plan, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("instruction cannot be empty")
	}

	prompt := fmt.Sprintf("Available tools:\n%s\nInstruction: %s", p.schema.PromptText(), instruction)

	response, err := p.gen.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion provider call failed: %w", err)
	}

	actions, err := p.parse(response)
	if err != nil {
		return nil, err
	}

	for i, action := range actions {
		if err := p.schema.ValidateAction(action.Tool, action.Name, action.Args); err != nil {
			return nil, fmt.Errorf("%w: element %d (%s.%s): %v", ErrSchema, i, action.Tool, action.Name, err)
		}
	}

	plan := &protocol.Plan{
		ID:          uuid.New().String(),
		Instruction: instruction,
		Actions:     actions,
		CreatedAt:   time.Now(),
	}

	log.Info().
		Str("plan_id", plan.ID).
		Int("steps", len(actions)).
		Str("provider", p.gen.Provider()).
		Msg("Plan generated")

	return plan, nil
}

// parse decodes the provider response as a JSON array of actions.
// Providers often wrap JSON in a markdown code fence despite
// instructions, so fences are stripped before decoding.
func (p *Planner) parse(response string) ([]protocol.Action, error) {
	cleaned := stripCodeFence(response)

	decoder := json.NewDecoder(strings.NewReader(cleaned))
	decoder.UseNumber()

	var raw json.RawMessage
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrParse)
	}

	var actions []protocol.Action
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return actions, nil
}

// stripCodeFence removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || !strings.ContainsAny(first, "[{") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}
