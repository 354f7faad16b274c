package step

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/avrabe/raco/extension"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/model/types"
	"github.com/viant/structology/conv"
)

// ActionStep calls service.method on a registered action service.
type ActionStep struct {
	*base
	executable types.Executable
	signature  *types.Signature
	converter  *conv.Converter
}

func newActionStep(def *graph.Step, actions *extension.Actions) (*ActionStep, error) {
	if def.Action == nil {
		return nil, fmt.Errorf("step %v: action was empty", def.Name)
	}
	if actions == nil {
		return nil, fmt.Errorf("step %v: no actions registered", def.Name)
	}
	executable, signature, err := actions.Method(def.Action.Service, def.Action.Method)
	if err != nil {
		return nil, fmt.Errorf("step %v: %w", def.Name, err)
	}
	b, err := newBase(def, nil)
	if err != nil {
		return nil, err
	}
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	return &ActionStep{
		base:       b,
		executable: executable,
		signature:  signature,
		converter:  conv.NewConverter(options),
	}, nil
}

// Action returns "service.method".
func (s *ActionStep) Action() string {
	return s.def.Action.Service + "." + s.def.Action.Method
}

// Execute binds the expanded input to the method input type and runs it.
func (s *ActionStep) Execute(ctx context.Context, c *Context) (*Result, error) {
	input := c.Input
	if input == nil {
		input = map[string]interface{}{}
	}
	typedInput := newInstancePtr(s.signature.Input)
	if err := s.converter.Convert(input, typedInput); err != nil {
		return nil, fmt.Errorf("%w: step %v: %v", ErrInvalidInput, s.def.Name, err)
	}
	typedOutput := newInstancePtr(s.signature.Output)
	if err := s.executable(ctx, typedInput, typedOutput); err != nil {
		return nil, err
	}
	output, err := asDocument(typedOutput)
	if err != nil {
		return nil, fmt.Errorf("step %v: %w", s.def.Name, err)
	}
	return Completed(output), nil
}

func newInstancePtr(t reflect.Type) interface{} {
	if t == nil {
		return &map[string]interface{}{}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return reflect.New(t).Interface()
}

// asDocument converts a typed output into generic JSON values so it can be
// persisted and referenced by path.
func asDocument(value interface{}) (interface{}, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var ret interface{}
	if err = json.Unmarshal(data, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}
