package step

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/avrabe/raco/model/graph"
)

var codeGenerationInputSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"parameters": map[string]interface{}{"type": "object"},
	},
}

// CodeGenerationStep renders its template with the step input.
type CodeGenerationStep struct {
	*base
	template *template.Template
}

func newCodeGenerationStep(def *graph.Step) (*CodeGenerationStep, error) {
	if def.Template == "" {
		return nil, fmt.Errorf("step %v: template was empty", def.Name)
	}
	b, err := newBase(def, codeGenerationInputSchema)
	if err != nil {
		return nil, err
	}
	tmpl, err := template.New(def.Name).Option("missingkey=zero").Parse(def.Template)
	if err != nil {
		return nil, fmt.Errorf("step %v: invalid template: %w", def.Name, err)
	}
	return &CodeGenerationStep{base: b, template: tmpl}, nil
}

// Execute returns {"generated_code": text}.
func (s *CodeGenerationStep) Execute(_ context.Context, c *Context) (*Result, error) {
	input, _ := c.Input.(map[string]interface{})
	parameters, _ := input["parameters"].(map[string]interface{})
	data := map[string]interface{}{
		"Input":      input,
		"Parameters": parameters,
		"Outputs":    c.References(),
		"Global":     c.Global,
	}
	var out strings.Builder
	if err := s.template.Execute(&out, data); err != nil {
		return nil, errors.Join(ErrInvalidInput, fmt.Errorf("step %v: render failed: %w", s.def.Name, err))
	}
	return Completed(map[string]interface{}{"generated_code": out.String()}), nil
}
