package graph

import (
	"fmt"
	"time"
)

// StepType identifies how a step is executed.
type StepType string

const (
	TypeHumanInput     StepType = "human_input"
	TypeApproval       StepType = "approval"
	TypeCodeGeneration StepType = "code_generation"
	TypeAction         StepType = "action"
)

// IsValid reports whether t is a known step type.
func (t StepType) IsValid() bool {
	switch t {
	case TypeHumanInput, TypeApproval, TypeCodeGeneration, TypeAction:
		return true
	}
	return false
}

type (
	// Action names a registered service method run by an action step.
	Action struct {
		Service string `json:"service,omitempty" yaml:"service,omitempty"`
		Method  string `json:"method,omitempty" yaml:"method,omitempty"`
	}

	// Step is a single node of a workflow graph.
	Step struct {
		ID           string                 `json:"id,omitempty" yaml:"id,omitempty"`
		Name         string                 `json:"name,omitempty" yaml:"name,omitempty"`
		Description  string                 `json:"description,omitempty" yaml:"description,omitempty"`
		Type         StepType               `json:"type,omitempty" yaml:"type,omitempty"`
		Prompt       string                 `json:"prompt,omitempty" yaml:"prompt,omitempty"`
		Template     string                 `json:"template,omitempty" yaml:"template,omitempty"`
		Action       *Action                `json:"action,omitempty" yaml:"action,omitempty"`
		Input        map[string]interface{} `json:"input,omitempty" yaml:"input,omitempty"`
		InputSchema  map[string]interface{} `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
		OutputSchema map[string]interface{} `json:"outputSchema,omitempty" yaml:"outputSchema,omitempty"`
		DependsOn    []string               `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
		Retry        *Retry                 `json:"retry,omitempty" yaml:"retry,omitempty"`
	}

	// Retry strategy for step
	Retry struct {
		Type       string  `json:"type,omitempty" yaml:"type,omitempty"` // fixed, exponential, none
		MaxRetries int     `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
		Delay      string  `json:"delay,omitempty" yaml:"delay,omitempty"`           // base delay (duration string)
		Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"` // exponential multiplier (>1)
		MaxDelay   string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	}

	// Dependency orders two steps: To runs after From completes.
	Dependency struct {
		From string `json:"from" yaml:"from"`
		To   string `json:"to" yaml:"to"`
	}
)

// Validate checks retry type and duration strings.
func (r *Retry) Validate() error {
	if r == nil {
		return nil
	}
	switch r.Type {
	case "", "none", "fixed", "exponential":
	default:
		return fmt.Errorf("unsupported retry type %q", r.Type)
	}
	for _, d := range []string{r.Delay, r.MaxDelay} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid retry duration %q: %w", d, err)
		}
	}
	return nil
}

// WithAction sets the action for the step
func (s *Step) WithAction(service string, method string, input map[string]interface{}) *Step {
	s.Type = TypeAction
	s.Action = &Action{Service: service, Method: method}
	s.Input = input
	return s
}

// WithInput sets one input value.
func (s *Step) WithInput(name string, value interface{}) *Step {
	if s.Input == nil {
		s.Input = map[string]interface{}{}
	}
	s.Input[name] = value
	return s
}

// WithDependsOn adds a dependency to the step
func (s *Step) WithDependsOn(ref string) *Step {
	s.DependsOn = append(s.DependsOn, ref)
	return s
}

// WithRetry sets the retry strategy.
func (s *Step) WithRetry(retry *Retry) *Step {
	s.Retry = retry
	return s
}

// Clone creates a deep copy of a step
func (s *Step) Clone() *Step {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Action != nil {
		action := *s.Action
		clone.Action = &action
	}
	if s.Retry != nil {
		retry := *s.Retry
		clone.Retry = &retry
	}
	if s.DependsOn != nil {
		clone.DependsOn = append([]string{}, s.DependsOn...)
	}
	clone.Input = CloneMap(s.Input)
	clone.InputSchema = CloneMap(s.InputSchema)
	clone.OutputSchema = CloneMap(s.OutputSchema)
	return &clone
}

// CloneMap deep copies nested maps and slices; other values are shared.
func CloneMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v interface{}) interface{} {
	switch actual := v.(type) {
	case map[string]interface{}:
		return CloneMap(actual)
	case []interface{}:
		out := make([]interface{}, len(actual))
		for i, item := range actual {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
