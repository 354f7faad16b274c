package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/avrabe/raco/model/types"
)

const name = "printer"

// Service writes messages to a writer, stdout by default.
type Service struct {
	writer io.Writer
}

type Input struct {
	Message string `json:"message"`
}

type Output struct {
	Printed int `json:"printed"`
}

// New creates a printer; a nil writer means os.Stdout.
func New(writer io.Writer) *Service {
	if writer == nil {
		writer = os.Stdout
	}
	return &Service{writer: writer}
}

// Name returns the service name
func (s *Service) Name() string {
	return name
}

// Methods returns the service methods
func (s *Service) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:        "print",
			Description: "Prints the given message.",
			Input:       reflect.TypeOf(&Input{}),
			Output:      reflect.TypeOf(&Output{}),
		},
	}
}

// Method returns the specified method
func (s *Service) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "print":
		return s.print, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *Service) print(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	n, err := fmt.Fprintln(s.writer, input.Message)
	if err != nil {
		return err
	}
	if output, ok := out.(*Output); ok {
		output.Printed = n
	}
	return nil
}
