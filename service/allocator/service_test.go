package allocator

import (
	"context"
	"errors"
	"testing"

	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/runtime/execution"
	execmem "github.com/avrabe/raco/service/dao/execution/memory"
	instmem "github.com/avrabe/raco/service/dao/instance/memory"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/messaging/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service    *Service
	queue      *memory.Queue[execution.Execution]
	instances  *instmem.Service
	executions *execmem.Service
	registry   *progress.Registry
	events     []string
}

func newFixture(t *testing.T, w *model.Workflow) (*fixture, *execution.Instance) {
	t.Helper()
	instance, err := execution.NewInstance(w, nil)
	require.NoError(t, err)
	instance.SetStatus(execution.WorkflowRunning)
	ret := &fixture{
		queue:      memory.NewQueue[execution.Execution](memory.DefaultConfig()),
		instances:  instmem.New(),
		executions: execmem.New(),
		registry:   progress.NewRegistry(nil),
	}
	events := event.New()
	events.SetListener(func(e *event.Event[any]) { ret.events = append(ret.events, e.Context.EventType) })
	ret.service = New(ret.instances, ret.executions, ret.queue, DefaultConfig(), WithEvents(events), WithProgress(ret.registry))
	require.NoError(t, ret.instances.Save(context.Background(), instance))
	return ret, instance
}

// finish consumes one scheduled execution and stores it with the given outcome.
func (f *fixture) finish(t *testing.T, fn func(e *execution.Execution)) *execution.Execution {
	t.Helper()
	msg, err := f.queue.Consume(context.Background())
	require.NoError(t, err)
	anExecution := msg.T()
	fn(anExecution)
	require.NoError(t, f.executions.Save(context.Background(), anExecution))
	require.NoError(t, msg.Ack())
	return anExecution
}

func (f *fixture) load(t *testing.T, id string) *execution.Instance {
	t.Helper()
	instance, err := f.instances.Load(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, instance)
	return instance
}

func chain() *model.Workflow {
	w := model.NewWorkflow("chain")
	w.NewStep("first", graph.TypeAction).WithAction("nop", "nop", nil)
	w.NewStep("second", graph.TypeAction).WithAction("nop", "nop", nil).WithDependsOn("first")
	return w
}

func TestService_Allocate_Sequence(t *testing.T) {
	ctx := context.Background()
	f, instance := newFixture(t, chain())

	require.NoError(t, f.service.Allocate(ctx))
	assert.Equal(t, 1, f.queue.Size())
	stored := f.load(t, instance.ID)
	first := stored.LookupStep("first")
	second := stored.LookupStep("second")
	status, _ := stored.StepStatus(first.ID)
	assert.Equal(t, execution.StepRunning, status)
	status, _ = stored.StepStatus(second.ID)
	assert.Equal(t, execution.StepPending, status)

	f.finish(t, func(e *execution.Execution) { e.Complete(map[string]interface{}{"v": 1}) })
	require.NoError(t, f.service.Allocate(ctx))
	stored = f.load(t, instance.ID)
	assert.Equal(t, map[string]interface{}{"v": 1}, stored.Output(first.ID))
	status, _ = stored.StepStatus(second.ID)
	assert.Equal(t, execution.StepRunning, status)

	f.finish(t, func(e *execution.Execution) { e.Complete("done") })
	require.NoError(t, f.service.Allocate(ctx))
	stored = f.load(t, instance.ID)
	assert.Equal(t, execution.WorkflowCompleted, stored.GetStatus())
	assert.NotNil(t, stored.CompletedAt)
	assert.Contains(t, f.events, event.TypeWorkflowCompleted)

	tracker, ok := f.registry.Get(instance.ID)
	require.True(t, ok)
	assert.Equal(t, 2, tracker.Snapshot().Completed)
}

func TestService_Allocate_FailureSkipsRemaining(t *testing.T) {
	ctx := context.Background()
	w := chain()
	w.NewStep("third", graph.TypeAction).WithAction("nop", "nop", nil).WithDependsOn("second")
	f, instance := newFixture(t, w)

	require.NoError(t, f.service.Allocate(ctx))
	f.finish(t, func(e *execution.Execution) { e.Fail(errors.New("boom")) })
	require.NoError(t, f.service.Allocate(ctx))

	stored := f.load(t, instance.ID)
	assert.Equal(t, execution.WorkflowFailed, stored.GetStatus())
	assert.Equal(t, "boom", stored.Errors["first"])
	counts := stored.Counts()
	assert.Equal(t, 1, counts[execution.StepFailed])
	assert.Equal(t, 2, counts[execution.StepSkipped])
	assert.Equal(t, 0, f.queue.Size())
	assert.Contains(t, f.events, event.TypeStepSkipped)
	assert.Contains(t, f.events, event.TypeWorkflowFailed)

	// terminal instances are no longer touched
	require.NoError(t, f.service.Allocate(ctx))
	assert.Equal(t, 0, f.queue.Size())
}

func TestService_Allocate_Parallel(t *testing.T) {
	ctx := context.Background()
	w := model.NewWorkflow("fan-out")
	w.NewStep("a", graph.TypeAction).WithAction("nop", "nop", nil)
	w.NewStep("b", graph.TypeAction).WithAction("nop", "nop", nil)
	f, _ := newFixture(t, w)

	require.NoError(t, f.service.Allocate(ctx))
	assert.Equal(t, 2, f.queue.Size())
}

func TestService_Allocate_WaitingForInput(t *testing.T) {
	ctx := context.Background()
	w := model.NewWorkflow("ask")
	w.NewStep("question", graph.TypeHumanInput)
	f, instance := newFixture(t, w)

	require.NoError(t, f.service.Allocate(ctx))
	f.finish(t, func(e *execution.Execution) { e.Wait() })
	require.NoError(t, f.service.Allocate(ctx))

	stored := f.load(t, instance.ID)
	assert.Equal(t, execution.WorkflowWaitingForInput, stored.GetStatus())
	assert.Contains(t, f.events, event.TypeWorkflowWaiting)

	// an answer resets the step to pending so that it is scheduled again
	step := stored.LookupStep("question")
	_, err := f.service.Update(ctx, instance.ID, func(i *execution.Instance) error {
		i.SetInput(step.ID, &execution.HumanInput{Value: "yes"})
		i.SetStepStatus(step.ID, execution.StepPending)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, f.service.Allocate(ctx))
	stored = f.load(t, instance.ID)
	assert.Equal(t, execution.WorkflowRunning, stored.GetStatus())
	assert.Equal(t, 1, f.queue.Size())
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	f, instance := newFixture(t, chain())

	_, err := f.service.Update(ctx, "missing", func(*execution.Instance) error { return nil })
	assert.ErrorIs(t, err, ErrInstanceNotFound)

	boom := errors.New("boom")
	_, err = f.service.Update(ctx, instance.ID, func(i *execution.Instance) error {
		i.SetStatus(execution.WorkflowCancelled)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, execution.WorkflowRunning, f.load(t, instance.ID).GetStatus())

	updated, err := f.service.Update(ctx, instance.ID, func(i *execution.Instance) error {
		i.SetStatus(execution.WorkflowCancelled)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, execution.WorkflowCancelled, updated.GetStatus())
}
