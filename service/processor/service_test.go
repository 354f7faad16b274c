package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/runtime/execution"
	execmem "github.com/avrabe/raco/service/dao/execution/memory"
	instmem "github.com/avrabe/raco/service/dao/instance/memory"
	"github.com/avrabe/raco/service/executor"
	"github.com/avrabe/raco/service/messaging/memory"
	"github.com/avrabe/raco/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFunc func(ctx context.Context, anExecution *execution.Execution, instance *execution.Instance) (*step.Result, error)

func (f executorFunc) Execute(ctx context.Context, anExecution *execution.Execution, instance *execution.Instance) (*step.Result, error) {
	return f(ctx, anExecution, instance)
}

type fixture struct {
	service    *Service
	queue      *memory.Queue[execution.Execution]
	instances  *instmem.Service
	executions *execmem.Service
	instance   *execution.Instance
}

func newFixture(t *testing.T, retry *graph.Retry, fn executorFunc) *fixture {
	t.Helper()
	w := model.NewWorkflow("demo")
	w.NewStep("work", graph.TypeAction).WithAction("nop", "nop", nil).WithRetry(retry)
	instance, err := execution.NewInstance(w, nil)
	require.NoError(t, err)
	instance.SetStatus(execution.WorkflowRunning)

	ret := &fixture{
		queue:      memory.NewQueue[execution.Execution](memory.DefaultConfig()),
		instances:  instmem.New(),
		executions: execmem.New(),
		instance:   instance,
	}
	require.NoError(t, ret.instances.Save(context.Background(), instance))
	ret.service, err = New(
		WithMessageQueue(ret.queue),
		WithInstanceDAO(ret.instances),
		WithExecutionDAO(ret.executions),
		WithExecutor(fn),
		WithConfig(Config{WorkerCount: 2, MaxTaskRetries: 1, RetryDelay: 5 * time.Millisecond}),
	)
	require.NoError(t, err)
	require.NoError(t, ret.service.Start(context.Background()))
	t.Cleanup(ret.service.Shutdown)
	return ret
}

func (f *fixture) publish(t *testing.T) *execution.Execution {
	anExecution := execution.NewExecution(f.instance.ID, f.instance.LookupStep("work"))
	require.NoError(t, f.queue.Publish(context.Background(), anExecution))
	return anExecution
}

func (f *fixture) state(t *testing.T, id string) func() execution.StepStatus {
	return func() execution.StepStatus {
		stored, err := f.executions.Load(context.Background(), id)
		require.NoError(t, err)
		if stored == nil {
			return ""
		}
		return stored.GetState()
	}
}

func eventually(t *testing.T, expect execution.StepStatus, actual func() execution.StepStatus) {
	t.Helper()
	assert.Eventually(t, func() bool { return actual() == expect }, 2*time.Second, 5*time.Millisecond)
}

func TestProcessor_Completes(t *testing.T) {
	f := newFixture(t, nil, func(ctx context.Context, e *execution.Execution, i *execution.Instance) (*step.Result, error) {
		return step.Completed(map[string]interface{}{"ok": true}), nil
	})
	anExecution := f.publish(t)
	eventually(t, execution.StepCompleted, f.state(t, anExecution.ID))

	stored, err := f.executions.Load(context.Background(), anExecution.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"ok": true}, stored.Output)
	assert.NotNil(t, stored.StartedAt)
}

func TestProcessor_Waits(t *testing.T) {
	f := newFixture(t, nil, func(ctx context.Context, e *execution.Execution, i *execution.Instance) (*step.Result, error) {
		return step.Waiting(), nil
	})
	anExecution := f.publish(t)
	eventually(t, execution.StepWaitingForInput, f.state(t, anExecution.ID))
}

func TestProcessor_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	f := newFixture(t, &graph.Retry{Type: "fixed", MaxRetries: 3, Delay: "5ms"}, func(ctx context.Context, e *execution.Execution, i *execution.Instance) (*step.Result, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("flaky")
		}
		return step.Completed("done"), nil
	})
	anExecution := f.publish(t)
	eventually(t, execution.StepCompleted, f.state(t, anExecution.ID))
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	stored, err := f.executions.Load(context.Background(), anExecution.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
}

func TestProcessor_RetryNoneFails(t *testing.T) {
	var calls int32
	f := newFixture(t, &graph.Retry{Type: "none"}, func(ctx context.Context, e *execution.Execution, i *execution.Instance) (*step.Result, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	})
	anExecution := f.publish(t)
	eventually(t, execution.StepFailed, f.state(t, anExecution.ID))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestProcessor_PermanentErrorNotRetried(t *testing.T) {
	var calls int32
	f := newFixture(t, &graph.Retry{Type: "fixed", MaxRetries: 5, Delay: "1ms"}, func(ctx context.Context, e *execution.Execution, i *execution.Instance) (*step.Result, error) {
		atomic.AddInt32(&calls, 1)
		return nil, executor.ErrPolicyDenied
	})
	anExecution := f.publish(t)
	eventually(t, execution.StepFailed, f.state(t, anExecution.ID))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestProcessor_DropsCancelled(t *testing.T) {
	var calls int32
	f := newFixture(t, nil, func(ctx context.Context, e *execution.Execution, i *execution.Instance) (*step.Result, error) {
		atomic.AddInt32(&calls, 1)
		return step.Completed(nil), nil
	})
	f.instance.SetStatus(execution.WorkflowCancelled)
	require.NoError(t, f.instances.Save(context.Background(), f.instance))

	anExecution := f.publish(t)
	eventually(t, execution.StepSkipped, f.state(t, anExecution.ID))
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestShouldRetry(t *testing.T) {
	s := &Service{config: Config{MaxTaskRetries: 2, RetryDelay: time.Second}}
	testCases := []struct {
		description string
		retry       *graph.Retry
		attempts    int
		expect      bool
		delay       time.Duration
	}{
		{description: "default config", retry: nil, attempts: 0, expect: true, delay: time.Second},
		{description: "default exhausted", retry: nil, attempts: 2, expect: false},
		{description: "none", retry: &graph.Retry{Type: "none"}, attempts: 0, expect: false},
		{description: "fixed", retry: &graph.Retry{Type: "fixed", MaxRetries: 3, Delay: "10ms"}, attempts: 2, expect: true, delay: 10 * time.Millisecond},
		{description: "exponential", retry: &graph.Retry{Type: "exponential", MaxRetries: 5, Delay: "10ms", Multiplier: 3}, attempts: 2, expect: true, delay: 90 * time.Millisecond},
		{description: "exponential capped", retry: &graph.Retry{Type: "exponential", MaxRetries: 5, Delay: "10ms", MaxDelay: "15ms"}, attempts: 3, expect: true, delay: 15 * time.Millisecond},
	}
	for _, testCase := range testCases {
		retry, delay := s.shouldRetry(testCase.retry, testCase.attempts)
		assert.Equal(t, testCase.expect, retry, testCase.description)
		assert.Equal(t, testCase.delay, delay, testCase.description)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestProcessor_Recover(t *testing.T) {
	ctx := context.Background()
	var calls int32
	f := newFixture(t, nil, func(ctx context.Context, e *execution.Execution, i *execution.Instance) (*step.Result, error) {
		atomic.AddInt32(&calls, 1)
		return step.Completed("done"), nil
	})
	work := f.instance.LookupStep("work")

	interrupted := execution.NewExecution(f.instance.ID, work)
	interrupted.Start()
	require.NoError(t, f.executions.Save(ctx, interrupted))
	f.instance.SetExecution(work.ID, interrupted.ID)
	f.instance.SetStepStatus(work.ID, execution.StepRunning)
	require.NoError(t, f.instances.Save(ctx, f.instance))

	stale := execution.NewExecution(f.instance.ID, work)
	require.NoError(t, f.executions.Save(ctx, stale))

	done := model.NewWorkflow("done")
	done.NewStep("work", graph.TypeAction).WithAction("nop", "nop", nil)
	finished, err := execution.NewInstance(done, nil)
	require.NoError(t, err)
	finished.SetStatus(execution.WorkflowCompleted)
	require.NoError(t, f.instances.Save(ctx, finished))
	orphan := execution.NewExecution(finished.ID, finished.LookupStep("work"))
	require.NoError(t, f.executions.Save(ctx, orphan))

	recovered, err := f.service.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	eventually(t, execution.StepCompleted, f.state(t, interrupted.ID))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, execution.StepPending, f.state(t, stale.ID)())
	assert.Equal(t, execution.StepPending, f.state(t, orphan.ID)())
}
