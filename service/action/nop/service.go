package nop

import (
	"context"
	"reflect"

	"github.com/avrabe/raco/model/types"
)

const name = "nop"

// Service performs no operation; it echoes its input values.
type Service struct{}

type Input struct {
	Values map[string]interface{} `json:"values,omitempty"`
}

type Output struct {
	Values map[string]interface{} `json:"values,omitempty"`
}

// New creates a nop service
func New() *Service {
	return &Service{}
}

// Name returns the service name
func (s *Service) Name() string {
	return name
}

// Methods returns the service methods
func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:        "nop",
			Description: "Performs no operation and returns the given values.",
			Input:       reflect.TypeOf(&Input{}),
			Output:      reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	if name != "nop" {
		return nil, types.NewMethodNotFoundError(name)
	}
	return s.nop, nil
}

func (s *Service) nop(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	output.Values = input.Values
	return nil
}
