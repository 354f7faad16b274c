package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/avrabe/raco/extension"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/action/nop"
	"github.com/avrabe/raco/service/approval"
	memApproval "github.com/avrabe/raco/service/approval/memory"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newInstance(t *testing.T, build func(w *model.Workflow)) *execution.Instance {
	t.Helper()
	w := model.NewWorkflow("demo").WithGlobal("project", "raco")
	build(w)
	instance, err := execution.NewInstance(w, nil)
	require.NoError(t, err)
	return instance
}

func execFor(instance *execution.Instance, name string) *execution.Execution {
	return execution.NewExecution(instance.ID, instance.LookupStep(name))
}

func TestExecute_ActionWithPreviousOutput(t *testing.T) {
	instance := newInstance(t, func(w *model.Workflow) {
		w.NewStep("first", graph.TypeAction).WithAction("nop", "nop", map[string]interface{}{
			"values": map[string]interface{}{"name": "${global.project}"},
		})
		w.NewStep("second", graph.TypeAction).WithAction("nop", "nop", map[string]interface{}{
			"values": map[string]interface{}{"copy": "${first.values.name}"},
		}).WithDependsOn("first")
	})
	first := instance.LookupStep("first")
	instance.SetOutput(first.ID, map[string]interface{}{"values": map[string]interface{}{"name": "raco"}})
	instance.SetStepStatus(first.ID, execution.StepCompleted)

	var seen []string
	events := event.New(event.WithSink(event.SinkFunc(func(_ context.Context, e *event.Event[any]) error {
		seen = append(seen, e.Context.EventType)
		return nil
	})))
	srv := executor.New(extension.NewActions(nop.New()), executor.WithEvents(events))

	result, err := srv.Execute(context.Background(), execFor(instance, "second"), instance)
	require.NoError(t, err)
	assert.Equal(t, execution.StepCompleted, result.Status)
	assert.Equal(t, map[string]interface{}{"values": map[string]interface{}{"copy": "raco"}}, result.Output)
	assert.Equal(t, []string{event.TypeStepExecuted}, seen)
}

func TestExecute_HumanInputAsk(t *testing.T) {
	instance := newInstance(t, func(w *model.Workflow) {
		w.NewStep("name", graph.TypeHumanInput).Prompt = "Project name?"
	})
	approvals := memApproval.New()
	logger := logging.NewTestLogger()
	srv := executor.New(nil, executor.WithApproval(approvals), executor.WithLogger(logger.Logger))
	ctx := context.Background()

	result, err := srv.Execute(ctx, execFor(instance, "name"), instance)
	require.NoError(t, err)
	assert.Equal(t, execution.StepWaitingForInput, result.Status)
	logger.AssertLogged(t, zapcore.InfoLevel, "waiting for human input")

	_, err = srv.Execute(ctx, execFor(instance, "name"), instance)
	require.NoError(t, err)
	pending, err := approvals.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, approval.KindInput, pending[0].Kind)
	assert.Equal(t, "Project name?", pending[0].Prompt)

	step := instance.LookupStep("name")
	instance.SetInput(step.ID, &execution.HumanInput{Value: "raco"})
	result, err = srv.Execute(ctx, execFor(instance, "name"), instance)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"human_input": "raco"}, result.Output)
}

func TestExecute_Policy(t *testing.T) {
	testCases := []struct {
		description string
		mode        string
		stepType    graph.StepType
		status      execution.StepStatus
		output      interface{}
	}{
		{description: "auto input uses default", mode: policy.ModeAuto, stepType: graph.TypeHumanInput, status: execution.StepCompleted,
			output: map[string]interface{}{"human_input": "main"}},
		{description: "auto approval approves", mode: policy.ModeAuto, stepType: graph.TypeApproval, status: execution.StepCompleted,
			output: map[string]interface{}{"approved": true, "reason": "answered by policy"}},
		{description: "deny fails input", mode: policy.ModeDeny, stepType: graph.TypeHumanInput, status: execution.StepFailed},
		{description: "deny fails approval", mode: policy.ModeDeny, stepType: graph.TypeApproval, status: execution.StepFailed},
	}
	for _, testCase := range testCases {
		instance := newInstance(t, func(w *model.Workflow) {
			w.NewStep("human", testCase.stepType).WithInput("default", "main")
		})
		instance.Policy = &policy.Config{Mode: testCase.mode}
		srv := executor.New(nil)
		result, err := srv.Execute(context.Background(), execFor(instance, "human"), instance)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.status, result.Status, testCase.description)
		if testCase.output != nil {
			assert.Equal(t, testCase.output, result.Output, testCase.description)
		}
	}
}

func TestExecute_BlockedAction(t *testing.T) {
	instance := newInstance(t, func(w *model.Workflow) {
		w.NewStep("noop", graph.TypeAction).WithAction("nop", "nop", nil)
	})
	srv := executor.New(extension.NewActions(nop.New()), executor.WithPolicy(&policy.Policy{BlockList: []string{"nop.nop"}}))
	_, err := srv.Execute(context.Background(), execFor(instance, "noop"), instance)
	require.Error(t, err)
	assert.True(t, errors.Is(err, executor.ErrPolicyDenied))
	assert.True(t, executor.IsPermanent(err))
}

func TestExecute_InvalidInput(t *testing.T) {
	instance := newInstance(t, func(w *model.Workflow) {
		s := w.NewStep("gen", graph.TypeCodeGeneration)
		s.Template = "{{.Parameters.name}}"
		s.WithInput("parameters", "not an object")
	})
	_, err := executor.New(nil).Execute(context.Background(), execFor(instance, "gen"), instance)
	require.Error(t, err)
	assert.True(t, executor.IsPermanent(err))
}

func TestExecute_UnknownStep(t *testing.T) {
	instance := newInstance(t, func(w *model.Workflow) {
		w.NewStep("noop", graph.TypeAction).WithAction("nop", "nop", nil)
	})
	anExecution := &execution.Execution{ID: "x", InstanceID: instance.ID, StepID: "missing"}
	_, err := executor.New(nil).Execute(context.Background(), anExecution, instance)
	assert.ErrorIs(t, err, executor.ErrStepNotFound)
}
