package step

import (
	"context"
	"errors"
	"fmt"

	"github.com/avrabe/raco/extension"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidInput wraps schema validation failures; such failures are not retried.
var ErrInvalidInput = errors.New("invalid step input")

// HumanInput is the answer a person gave to a waiting step.
type HumanInput = execution.HumanInput

// Step is an executable workflow step.
type Step interface {
	ID() string
	Name() string
	Description() string
	InputSchema() *jsonschema.Schema
	OutputSchema() *jsonschema.Schema
	Execute(ctx context.Context, c *Context) (*Result, error)
	ValidateInput(input interface{}) error
	RequiresHumanInput() bool
	HumanInputPrompt() string
}

// Context carries everything a step sees while executing.
type Context struct {
	Input           interface{}
	PreviousOutputs map[string]interface{}
	Global          map[string]interface{}
	HumanInput      *HumanInput
	// StepNames maps step ids to names so references may use either.
	StepNames map[string]string
}

// References returns the lookup map used for ${...} expansion and templates.
func (c *Context) References() map[string]interface{} {
	ret := make(map[string]interface{}, 2*len(c.PreviousOutputs)+1)
	for id, output := range c.PreviousOutputs {
		ret[id] = output
		if name, ok := c.StepNames[id]; ok && name != "" {
			ret[name] = output
		}
	}
	global := c.Global
	if global == nil {
		global = map[string]interface{}{}
	}
	ret["global"] = global
	return ret
}

// Result is the outcome of one step execution.
type Result struct {
	Output interface{}          `json:"output,omitempty"`
	Status execution.StepStatus `json:"status"`
	Error  string               `json:"error,omitempty"`
}

// Completed returns a completed result.
func Completed(output interface{}) *Result {
	return &Result{Output: output, Status: execution.StepCompleted}
}

// Waiting returns a result asking for human input.
func Waiting() *Result {
	return &Result{Status: execution.StepWaitingForInput}
}

// Failed returns a failed result.
func Failed(message string) *Result {
	return &Result{Status: execution.StepFailed, Error: message}
}

type base struct {
	def          *graph.Step
	inputSchema  *schema
	outputSchema *schema
}

func newBase(def *graph.Step, defaultInputSchema map[string]interface{}) (*base, error) {
	inputSource := def.InputSchema
	if inputSource == nil {
		inputSource = defaultInputSchema
	}
	inputSchema, err := compileSchema(inputSource)
	if err != nil {
		return nil, fmt.Errorf("step %v: invalid input schema: %w", def.Name, err)
	}
	outputSchema, err := compileSchema(def.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("step %v: invalid output schema: %w", def.Name, err)
	}
	return &base{def: def, inputSchema: inputSchema, outputSchema: outputSchema}, nil
}

func (b *base) ID() string          { return b.def.ID }
func (b *base) Name() string        { return b.def.Name }
func (b *base) Description() string { return b.def.Description }

func (b *base) InputSchema() *jsonschema.Schema  { return b.inputSchema.source() }
func (b *base) OutputSchema() *jsonschema.Schema { return b.outputSchema.source() }

// ValidateInput validates input against the input schema, if any.
func (b *base) ValidateInput(input interface{}) error {
	if err := b.inputSchema.validate(input); err != nil {
		return fmt.Errorf("%w: step %v: %v", ErrInvalidInput, b.def.Name, err)
	}
	return nil
}

func (b *base) RequiresHumanInput() bool { return false }
func (b *base) HumanInputPrompt() string { return "" }

// New builds a Step from a definition.
func New(def *graph.Step, actions *extension.Actions) (Step, error) {
	if def == nil {
		return nil, errors.New("step definition was nil")
	}
	switch def.Type {
	case graph.TypeHumanInput:
		return newHumanInputStep(def)
	case graph.TypeApproval:
		return newApprovalStep(def)
	case graph.TypeCodeGeneration:
		return newCodeGenerationStep(def)
	case graph.TypeAction:
		return newActionStep(def, actions)
	}
	return nil, fmt.Errorf("unsupported step type: %q", def.Type)
}
