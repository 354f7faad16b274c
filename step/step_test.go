package step

import (
	"context"
	"errors"
	"testing"

	"github.com/avrabe/raco/extension"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/action/nop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

func TestHumanInputStep(t *testing.T) {
	def := &graph.Step{ID: "s1", Name: "ask", Type: graph.TypeHumanInput, Prompt: "Project name?"}
	s, err := New(def, nil)
	require.NoError(t, err)
	assert.True(t, s.RequiresHumanInput())
	assert.Equal(t, "Project name?", s.HumanInputPrompt())

	result, err := s.Execute(context.Background(), &Context{})
	require.NoError(t, err)
	assert.Equal(t, execution.StepWaitingForInput, result.Status)

	result, err = s.Execute(context.Background(), &Context{HumanInput: &HumanInput{Value: "raco"}})
	require.NoError(t, err)
	assert.Equal(t, execution.StepCompleted, result.Status)
	assert.Equal(t, map[string]interface{}{"human_input": "raco"}, result.Output)
}

func TestApprovalStep(t *testing.T) {
	def := &graph.Step{ID: "s2", Name: "review", Type: graph.TypeApproval}
	s, err := New(def, nil)
	require.NoError(t, err)
	assert.Equal(t, "review", s.HumanInputPrompt())

	testCases := []struct {
		description string
		input       *HumanInput
		status      execution.StepStatus
		output      interface{}
		error       string
	}{
		{description: "no decision", input: nil, status: execution.StepWaitingForInput},
		{description: "value without decision", input: &HumanInput{Value: "x"}, status: execution.StepWaitingForInput},
		{description: "approved", input: &HumanInput{Approved: boolPtr(true), Reason: "lgtm"}, status: execution.StepCompleted,
			output: map[string]interface{}{"approved": true, "reason": "lgtm"}},
		{description: "rejected", input: &HumanInput{Approved: boolPtr(false), Reason: "too risky"}, status: execution.StepFailed,
			error: "step review was rejected: too risky"},
	}
	for _, testCase := range testCases {
		result, err := s.Execute(context.Background(), &Context{HumanInput: testCase.input})
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.status, result.Status, testCase.description)
		assert.Equal(t, testCase.output, result.Output, testCase.description)
		assert.Equal(t, testCase.error, result.Error, testCase.description)
	}
}

func TestCodeGenerationStep(t *testing.T) {
	def := &graph.Step{
		ID:       "s3",
		Name:     "gen",
		Type:     graph.TypeCodeGeneration,
		Template: `package {{.Parameters.pkg}} // {{.Global.project}} by {{index .Outputs "ask" "human_input"}}`,
	}
	s, err := New(def, nil)
	require.NoError(t, err)
	require.NotNil(t, s.InputSchema())

	input := map[string]interface{}{"parameters": map[string]interface{}{"pkg": "main"}}
	require.NoError(t, s.ValidateInput(input))
	err = s.ValidateInput(map[string]interface{}{"parameters": "main"})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	c := &Context{
		Input:           input,
		PreviousOutputs: map[string]interface{}{"s1": map[string]interface{}{"human_input": "alice"}},
		StepNames:       map[string]string{"s1": "ask"},
		Global:          map[string]interface{}{"project": "raco"},
	}
	result, err := s.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"generated_code": "package main // raco by alice"}, result.Output)
}

func TestCodeGenerationStep_InvalidTemplate(t *testing.T) {
	_, err := New(&graph.Step{Name: "gen", Type: graph.TypeCodeGeneration, Template: "{{.Broken"}, nil)
	assert.Error(t, err)
	_, err = New(&graph.Step{Name: "gen", Type: graph.TypeCodeGeneration}, nil)
	assert.Error(t, err)
}

func TestActionStep(t *testing.T) {
	actions := extension.NewActions(nop.New())
	def := (&graph.Step{ID: "s4", Name: "echo"}).WithAction("nop", "nop", map[string]interface{}{
		"values": map[string]interface{}{"greeting": "${global.greeting}"},
	})
	s, err := New(def, actions)
	require.NoError(t, err)
	assert.Equal(t, "nop.nop", s.(*ActionStep).Action())

	c := &Context{Global: map[string]interface{}{"greeting": "hi"}}
	c.Input, err = ExpandInput(def.Input, c)
	require.NoError(t, err)

	result, err := s.Execute(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, execution.StepCompleted, result.Status)
	assert.Equal(t, map[string]interface{}{"values": map[string]interface{}{"greeting": "hi"}}, result.Output)
}

func TestActionStep_UnknownAction(t *testing.T) {
	def := (&graph.Step{Name: "bad"}).WithAction("missing", "call", nil)
	_, err := New(def, extension.NewActions())
	assert.EqualError(t, err, "step bad: service missing not found")
}

func TestNew_InvalidSchema(t *testing.T) {
	def := &graph.Step{Name: "ask", Type: graph.TypeHumanInput, InputSchema: map[string]interface{}{"type": 12}}
	_, err := New(def, nil)
	assert.Error(t, err)
}

func TestContext_References(t *testing.T) {
	c := &Context{
		PreviousOutputs: map[string]interface{}{"id1": "out"},
		StepNames:       map[string]string{"id1": "first"},
	}
	refs := c.References()
	assert.Equal(t, "out", refs["id1"])
	assert.Equal(t, "out", refs["first"])
	assert.Equal(t, map[string]interface{}{}, refs["global"])
}
