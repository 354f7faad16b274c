package raco

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avrabe/raco/internal/clock"
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/model"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/allocator"
	"github.com/avrabe/raco/service/approval"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/criteria"
	"github.com/avrabe/raco/service/dao/workflow"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/messaging"
	"github.com/avrabe/raco/service/processor"
	"github.com/avrabe/raco/tracing"
	"go.uber.org/zap"
)

// waitInterval is how often Wait polls the instance store.
const waitInterval = 10 * time.Millisecond

// Runtime represents a workflow engine runtime
type Runtime struct {
	workflowDAO  *workflow.Service
	instanceDAO  dao.Service[string, execution.Instance]
	executionDAO dao.Service[string, execution.Execution]
	queue        messaging.Queue[execution.Execution]
	processor    *processor.Service
	allocator    *allocator.Service
	approvals    approval.Service
	events       *event.Service
	progress     *progress.Registry
	logger       *logging.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
}

// CreateOption customises a new workflow instance.
type CreateOption func(instance *execution.Instance)

// WithInstancePolicy overrides the engine policy for one instance.
func WithInstancePolicy(p *policy.Policy) CreateOption {
	return func(instance *execution.Instance) {
		instance.Policy = policy.ToConfig(p)
	}
}

// Start launches the processor workers and the allocator loop. It returns
// immediately; Shutdown stops both.
func (r *Runtime) Start(ctx context.Context) error {
	var err error
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		if err = r.processor.Start(ctx); err != nil {
			return
		}
		if _, err = r.processor.Recover(ctx); err != nil {
			return
		}
		go func() {
			if aErr := r.allocator.Start(ctx); aErr != nil && !errors.Is(aErr, context.Canceled) {
				r.logger.Error(ctx, "allocator stopped", zap.Error(aErr))
			}
		}()
		r.logger.Info(ctx, "workflow engine started")
	})
	return err
}

// Shutdown stops the allocator and the processor.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.allocator.Shutdown()
	r.processor.Shutdown()
	if r.cancel != nil {
		r.cancel()
	}
	r.logger.Info(ctx, "workflow engine stopped")
	return nil
}

// CreateWorkflow validates def and stores a pending instance. global values
// override the definition defaults.
func (r *Runtime) CreateWorkflow(ctx context.Context, def *model.Workflow, global map[string]interface{}, opts ...CreateOption) (string, error) {
	if def == nil {
		return "", errors.New("workflow definition is nil")
	}
	instance, err := execution.NewInstance(def, global)
	if err != nil {
		return "", fmt.Errorf("invalid workflow %s: %w", def.Name, err)
	}
	for _, opt := range opts {
		opt(instance)
	}
	if err = r.instanceDAO.Save(ctx, instance); err != nil {
		return "", err
	}
	r.progress.Track(instance.ID, instance.Name).Sync(instance.Progress())
	ctx = logging.WithWorkflowID(ctx, instance.ID)
	r.logger.Info(ctx, "workflow created", zap.String("workflow", instance.Name), zap.Int("steps", len(instance.Workflow.Steps)))
	r.emit(ctx, instance, event.TypeWorkflowCreated)
	return instance.ID, nil
}

// GetWorkflow returns a copy of the instance.
func (r *Runtime) GetWorkflow(ctx context.Context, id string) (*execution.Instance, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrWorkflowNotFound)
	}
	instance, err := r.instanceDAO.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return instance, nil
}

// ListWorkflows returns instances in any of statuses (all when none given),
// oldest first.
func (r *Runtime) ListWorkflows(ctx context.Context, statuses ...execution.WorkflowStatus) ([]*execution.Instance, error) {
	var parameters []*dao.Parameter
	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}
		parameters = append(parameters, &dao.Parameter{Name: criteria.StatusParameter, Value: values})
	}
	instances, err := r.instanceDAO.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})
	return instances, nil
}

// StartWorkflow moves a pending instance to running; the allocator then
// schedules its root steps.
func (r *Runtime) StartWorkflow(ctx context.Context, id string) error {
	ctx = logging.WithWorkflowID(ctx, id)
	instance, err := r.update(ctx, id, func(instance *execution.Instance) error {
		if status := instance.GetStatus(); status != execution.WorkflowPending {
			return fmt.Errorf("%w: workflow %s is not in pending state (%s)", ErrInvalidState, id, status)
		}
		_, span := tracing.StartSpan(context.Background(), "workflow "+instance.Name, tracing.KindInternal)
		span.WithAttributes(map[string]string{"instance.id": instance.ID, "workflow.name": instance.Name})
		instance.Span = span
		instance.SetStatus(execution.WorkflowRunning)
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info(ctx, "workflow started", zap.String("workflow", instance.Name))
	r.emit(ctx, instance, event.TypeWorkflowStarted)
	return nil
}

// CancelWorkflow cancels an unfinished instance: unfinished steps are
// skipped and queued executions dropped. Cancelling twice is a no-op.
func (r *Runtime) CancelWorkflow(ctx context.Context, id string) error {
	ctx = logging.WithWorkflowID(ctx, id)
	var changed bool
	instance, err := r.update(ctx, id, func(instance *execution.Instance) error {
		switch instance.GetStatus() {
		case execution.WorkflowCompleted, execution.WorkflowFailed:
			return fmt.Errorf("%w: workflow %s already finished", ErrInvalidState, id)
		case execution.WorkflowCancelled:
			return nil
		}
		changed = true
		instance.SkipRemaining()
		instance.SetStatus(execution.WorkflowCancelled)
		tracing.EndSpan(instance.Span, nil)
		instance.Span = nil
		return nil
	})
	if err != nil || !changed {
		return err
	}
	if err = r.dropExecutions(ctx, id); err != nil {
		r.logger.Warn(ctx, "failed to drop queued executions", zap.Error(err))
	}
	r.logger.Info(ctx, "workflow cancelled", zap.String("workflow", instance.Name))
	r.emit(ctx, instance, event.TypeWorkflowCancelled)
	return nil
}

// dropExecutions marks unfinished executions of an instance skipped; the
// processor acknowledges them without running.
func (r *Runtime) dropExecutions(ctx context.Context, instanceID string) error {
	executions, err := r.executionDAO.List(ctx,
		dao.NewParameter(criteria.InstanceParameter, instanceID),
		dao.NewParameter(criteria.StatusParameter,
			string(execution.StepPending), string(execution.StepRunning), string(execution.StepWaitingForInput)))
	if err != nil {
		return err
	}
	var errs []error
	for _, anExecution := range executions {
		anExecution.Skip()
		if err := r.executionDAO.Save(ctx, anExecution); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProvideInput answers a waiting human input step. stepRef is a step id or
// name.
func (r *Runtime) ProvideInput(ctx context.Context, id, stepRef string, input interface{}) error {
	return r.answer(ctx, id, stepRef, approval.KindInput, true, input, "")
}

// Decide approves or rejects a waiting approval step.
func (r *Runtime) Decide(ctx context.Context, id, stepRef string, approved bool, reason string) error {
	return r.answer(ctx, id, stepRef, approval.KindApproval, approved, nil, reason)
}

func (r *Runtime) answer(ctx context.Context, id, stepRef string, kind approval.Kind, approved bool, input interface{}, reason string) error {
	instance, err := r.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	def := instance.LookupStep(stepRef)
	if def == nil {
		return fmt.Errorf("%w: %s", ErrStepNotFound, stepRef)
	}
	expected, ok := kindOf(def)
	if !ok {
		return fmt.Errorf("%w: step %s (%s) does not take human input", ErrInvalidState, def.Name, def.Type)
	}
	if expected != kind {
		return fmt.Errorf("%w: step %s expects %s, not %s", ErrInvalidState, def.Name, expected, kind)
	}
	pending, err := r.approvals.ListPending(ctx, approval.ForStep(id, def.ID))
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		_, err = r.approvals.Respond(ctx, pending[0].ID, approved, input, reason)
		return err
	}
	// no open request, e.g. an instance restored from disk
	request := &approval.Request{InstanceID: id, StepID: def.ID, StepName: def.Name, Kind: kind}
	decision := &approval.Decision{Approved: approved, Input: input, Reason: reason, DecidedAt: clock.Now()}
	return r.applyDecision(ctx, request, decision)
}

func kindOf(def *graph.Step) (approval.Kind, bool) {
	switch def.Type {
	case graph.TypeHumanInput:
		return approval.KindInput, true
	case graph.TypeApproval:
		return approval.KindApproval, true
	}
	return "", false
}

// applyDecision stores a human answer on the instance and resets the step
// to pending so that the allocator schedules it again.
func (r *Runtime) applyDecision(ctx context.Context, request *approval.Request, decision *approval.Decision) error {
	_, err := r.update(ctx, request.InstanceID, func(instance *execution.Instance) error {
		if status := instance.GetStatus(); !status.IsActive() {
			return fmt.Errorf("%w: workflow %s is %s", ErrInvalidState, instance.ID, status)
		}
		def := instance.Workflow.Step(request.StepID)
		if def == nil {
			return fmt.Errorf("%w: %s", ErrStepNotFound, request.StepID)
		}
		// a running step qualifies only through its open request: the
		// executor files it before the step is marked waiting
		status, _ := instance.StepStatus(def.ID)
		switch {
		case status == execution.StepWaitingForInput:
		case status == execution.StepRunning && request.ID != "":
		default:
			return fmt.Errorf("%w: step %s is not waiting for input (%s)", ErrInvalidState, def.Name, status)
		}
		input := &execution.HumanInput{Value: decision.Input, Reason: decision.Reason, ProvidedAt: decision.DecidedAt}
		if request.Kind == approval.KindApproval {
			approved := decision.Approved
			input.Approved = &approved
		}
		instance.SetInput(def.ID, input)
		instance.SetStepStatus(def.ID, execution.StepPending)
		if instance.GetStatus() == execution.WorkflowWaitingForInput && instance.Counts()[execution.StepWaitingForInput] == 0 {
			instance.SetStatus(execution.WorkflowRunning)
		}
		return nil
	})
	if err == nil {
		r.logger.Info(logging.WithWorkflowID(ctx, request.InstanceID), "human input received",
			zap.String("step", request.StepID),
			zap.Bool("approved", decision.Approved))
	}
	return err
}

// closeRequests expires the open requests of an instance that finished.
func (r *Runtime) closeRequests(ctx context.Context, e *event.Event[any]) error {
	switch e.Context.EventType {
	case event.TypeWorkflowCompleted, event.TypeWorkflowFailed, event.TypeWorkflowCancelled:
	default:
		return nil
	}
	expired, err := r.approvals.Expire(ctx, approval.ForInstance(e.Context.InstanceID))
	if err != nil {
		return fmt.Errorf("failed to close requests of %s: %w", e.Context.InstanceID, err)
	}
	if len(expired) > 0 {
		r.logger.Debug(logging.WithWorkflowID(ctx, e.Context.InstanceID), "human input requests closed", zap.Int("count", len(expired)))
	}
	return nil
}

// Wait blocks until the instance is finished or waits for input.
func (r *Runtime) Wait(ctx context.Context, id string, timeout time.Duration) (*execution.Instance, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(waitInterval)
	defer ticker.Stop()
	for {
		instance, err := r.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		if status := instance.GetStatus(); status.IsTerminal() || status == execution.WorkflowWaitingForInput {
			return instance, nil
		}
		select {
		case <-ctx.Done():
			return instance, ctx.Err()
		case <-deadline.C:
			return instance, fmt.Errorf("timeout waiting for workflow %s after %s", id, timeout)
		case <-ticker.C:
		}
	}
}

// PendingRequests lists open human input requests of an instance, or of
// every instance when id is empty.
func (r *Runtime) PendingRequests(ctx context.Context, id string) ([]*approval.Request, error) {
	if id == "" {
		return r.approvals.ListPending(ctx)
	}
	return r.approvals.ListPending(ctx, approval.ForInstance(id))
}

// Approvals returns the approval service.
func (r *Runtime) Approvals() approval.Service {
	return r.approvals
}

// Progress returns the progress counters of an instance.
func (r *Runtime) Progress(id string) (progress.Progress, bool) {
	tracker, ok := r.progress.Get(id)
	if !ok {
		return progress.Progress{}, false
	}
	return tracker.Snapshot(), true
}

// Execution returns a step execution.
func (r *Runtime) Execution(ctx context.Context, id string) (*execution.Execution, error) {
	return r.executionDAO.Load(ctx, id)
}

// LoadWorkflow loads a definition through the workflow DAO.
func (r *Runtime) LoadWorkflow(ctx context.Context, location string) (*model.Workflow, error) {
	return r.workflowDAO.Load(ctx, location)
}

// DecodeWorkflow decodes a YAML (or JSON) definition.
func (r *Runtime) DecodeWorkflow(data []byte) (*model.Workflow, error) {
	return r.workflowDAO.DecodeYAML(data)
}

// ListDefinitions loads every definition under dir.
func (r *Runtime) ListDefinitions(ctx context.Context, dir string) ([]*model.Workflow, error) {
	return r.workflowDAO.List(ctx, dir)
}

// WatchDefinitions reloads definitions under dir on change until ctx is done.
func (r *Runtime) WatchDefinitions(ctx context.Context, dir string, fn workflow.ChangeFunc) error {
	return r.workflowDAO.Watch(ctx, dir, fn)
}

// RefreshWorkflow reloads the definition at location.
func (r *Runtime) RefreshWorkflow(ctx context.Context, location string) error {
	_, err := r.workflowDAO.Refresh(ctx, location)
	return err
}

// UpsertDefinition decodes data and caches it under location. Nil data
// evicts the cached copy so that the next load reads storage again.
func (r *Runtime) UpsertDefinition(location string, data []byte) error {
	if data == nil {
		r.workflowDAO.Remove(location)
		return nil
	}
	wf, err := r.workflowDAO.DecodeYAML(data)
	if err != nil {
		return fmt.Errorf("failed to decode workflow: %w", err)
	}
	wf.Source = &model.Source{URL: location}
	r.workflowDAO.Upsert(location, wf)
	return nil
}

func (r *Runtime) update(ctx context.Context, id string, fn func(instance *execution.Instance) error) (*execution.Instance, error) {
	instance, err := r.allocator.Update(ctx, id, fn)
	if errors.Is(err, allocator.ErrInstanceNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return instance, err
}

func (r *Runtime) emit(ctx context.Context, instance *execution.Instance, eventType string) {
	event.Emit(ctx, r.events, &event.Context{
		InstanceID: instance.ID,
		Workflow:   instance.Name,
		EventType:  eventType,
	}, instance.Clone())
}
