// Package toolschema declares the static contract every capability
// server and every generated plan must satisfy: which tools exist,
// which actions each tool supports, and the argument shape of each
// action. The table is immutable after construction and is consumed
// both as validation source of truth and as planner prompt context.
package toolschema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Parameter declares one argument of an action.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ActionSpec declares one action of a tool.
type ActionSpec struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// ToolSpec declares a tool: its endpoint key and its actions.
type ToolSpec struct {
	Name        string       `json:"name"`
	EndpointKey string       `json:"endpoint_key"`
	Description string       `json:"description"`
	Actions     []ActionSpec `json:"actions"`
}

// Schema is the compiled tool schema. Safe for concurrent readers.
type Schema struct {
	tools   map[string]ToolSpec
	actions map[string]map[string]*gojsonschema.Schema
}

// New compiles a schema from tool specs. Argument shapes are compiled
// once into JSON Schemas; invalid specs fail construction.
func New(specs []ToolSpec) (*Schema, error) {
	s := &Schema{
		tools:   make(map[string]ToolSpec, len(specs)),
		actions: make(map[string]map[string]*gojsonschema.Schema, len(specs)),
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("tool name cannot be empty")
		}
		if _, exists := s.tools[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate tool: %s", spec.Name)
		}
		if len(spec.Actions) == 0 {
			return nil, fmt.Errorf("tool %s declares no actions", spec.Name)
		}

		compiled := make(map[string]*gojsonschema.Schema, len(spec.Actions))
		for _, action := range spec.Actions {
			if action.Name == "" {
				return nil, fmt.Errorf("tool %s: action name cannot be empty", spec.Name)
			}
			if _, exists := compiled[action.Name]; exists {
				return nil, fmt.Errorf("tool %s: duplicate action %s", spec.Name, action.Name)
			}

			schema, err := compileArgsSchema(action)
			if err != nil {
				return nil, fmt.Errorf("tool %s action %s: %w", spec.Name, action.Name, err)
			}
			compiled[action.Name] = schema
		}

		s.tools[spec.Name] = spec
		s.actions[spec.Name] = compiled
	}

	return s, nil
}

// Default returns the built-in schema for the filesystem, system, and
// browser tools. Panics only on a programming error in the static
// table, before any request is served.
func Default() *Schema {
	s, err := New(defaultSpecs())
	if err != nil {
		panic(fmt.Sprintf("invalid built-in tool schema: %v", err))
	}
	return s
}

// HasTool reports whether a tool is declared.
func (s *Schema) HasTool(tool string) bool {
	_, ok := s.tools[tool]
	return ok
}

// Tool returns the spec of a declared tool.
func (s *Schema) Tool(tool string) (ToolSpec, bool) {
	spec, ok := s.tools[tool]
	return spec, ok
}

// Tools returns all declared tool names, sorted.
func (s *Schema) Tools() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAction checks a tool/action/args triple against the schema:
// the tool must be declared, the action must be declared for that
// tool, and the args must satisfy the action's argument shape.
func (s *Schema) ValidateAction(tool, action string, args map[string]any) error {
	compiled, ok := s.actions[tool]
	if !ok {
		return fmt.Errorf("unknown tool: %s", tool)
	}

	schema, ok := compiled[action]
	if !ok {
		return fmt.Errorf("unknown action %s for tool %s", action, tool)
	}

	if args == nil {
		args = map[string]any{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validating args for %s.%s: %w", tool, action, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("invalid args for %s.%s: %s", tool, action, strings.Join(details, "; "))
	}

	return nil
}

// PromptText renders the whole schema as plain text suitable for
// inclusion in a completion prompt.
func (s *Schema) PromptText() string {
	var b strings.Builder

	for _, toolName := range s.Tools() {
		spec := s.tools[toolName]
		fmt.Fprintf(&b, "Tool %q: %s\n", spec.Name, spec.Description)
		for _, action := range spec.Actions {
			fmt.Fprintf(&b, "  - action %q: %s\n", action.Name, action.Description)
			for _, param := range action.Parameters {
				requirement := "optional"
				if param.Required {
					requirement = "required"
				}
				fmt.Fprintf(&b, "      arg %q (%s, %s): %s\n",
					param.Name, param.Type, requirement, param.Description)
			}
		}
	}

	return b.String()
}

// compileArgsSchema builds a closed-world JSON Schema for an action's
// arguments: required args must be present, unknown args are rejected.
func compileArgsSchema(action ActionSpec) (*gojsonschema.Schema, error) {
	properties := make(map[string]any, len(action.Parameters))
	required := []string{}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	for _, param := range action.Parameters {
		if param.Name == "" {
			return nil, fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return nil, fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}

		properties[param.Name] = map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}
