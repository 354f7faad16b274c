package raco_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avrabe/raco"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/runtime/execution"
	efs "github.com/avrabe/raco/service/dao/execution/fs"
	ifs "github.com/avrabe/raco/service/dao/instance/fs"
	"github.com/avrabe/raco/service/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileStores(t *testing.T, dir string) []raco.Option {
	t.Helper()
	instances, err := ifs.New(filepath.Join(dir, "instances"), logging.NewNop())
	require.NoError(t, err)
	executions, err := efs.New(filepath.Join(dir, "executions"), logging.NewNop())
	require.NoError(t, err)
	return []raco.Option{raco.WithInstanceDAO(instances), raco.WithExecutionDAO(executions)}
}

func TestRuntime_RecoversPendingRetryAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	retried := make(chan struct{}, 1)
	onRetry := event.SinkFunc(func(_ context.Context, e *event.Event[any]) error {
		if e.Context.EventType == event.TypeStepRetry {
			select {
			case retried <- struct{}{}:
			default:
			}
		}
		return nil
	})
	flaky := newGate("flaky", false)
	flaky.failFirst = 1
	first := newRuntime(t, append(fileStores(t, dir), raco.WithExtensionServices(flaky), raco.WithEventSinks(onRetry))...)

	w := model.NewWorkflow("flaky")
	w.NewStep("work", graph.TypeAction).WithAction("flaky", "wait", nil).
		WithRetry(&graph.Retry{Type: "fixed", MaxRetries: 1, Delay: "300ms"})
	id, err := first.CreateWorkflow(ctx, w, nil)
	require.NoError(t, err)
	require.NoError(t, first.StartWorkflow(ctx, id))
	select {
	case <-retried:
	case <-time.After(5 * time.Second):
		t.Fatal("step was not retried")
	}
	require.NoError(t, first.Shutdown(ctx))
	assert.Equal(t, int32(1), flaky.calls.Load())

	steady := newGate("flaky", false)
	second := newRuntime(t, append(fileStores(t, dir), raco.WithExtensionServices(steady))...)
	instance, err := second.Wait(ctx, id, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, execution.WorkflowCompleted, instance.Status)
	assert.Equal(t, int32(1), steady.calls.Load())
}
