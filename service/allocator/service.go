package allocator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/criteria"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/messaging"
	"github.com/avrabe/raco/tracing"
	"go.uber.org/zap"
)

// ErrInstanceNotFound is returned by Update for unknown instances.
var ErrInstanceNotFound = errors.New("workflow instance not found")

// Config represents allocator service configuration
type Config struct {
	// PollingInterval is how often the allocator checks active instances
	PollingInterval time.Duration
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		PollingInterval: 20 * time.Millisecond,
	}
}

// Service allocates step executions to instances
type Service struct {
	config       Config
	instanceDAO  dao.Service[string, execution.Instance]
	executionDAO dao.Service[string, execution.Execution]
	queue        messaging.Queue[execution.Execution]
	events       *event.Service
	progress     *progress.Registry
	logger       *logging.Logger

	mu         sync.Mutex
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// New creates a new allocator service
func New(instanceDAO dao.Service[string, execution.Instance], executionDAO dao.Service[string, execution.Execution], queue messaging.Queue[execution.Execution], config Config, opts ...Option) *Service {
	if config.PollingInterval <= 0 {
		config.PollingInterval = DefaultConfig().PollingInterval
	}
	ret := &Service{
		config:       config,
		instanceDAO:  instanceDAO,
		executionDAO: executionDAO,
		queue:        queue,
		shutdownCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logging.NewNop()
	}
	ret.logger = ret.logger.Named("allocator")
	return ret
}

// Start runs the allocation loop until ctx is done or Shutdown is called.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			if err := s.Allocate(ctx); err != nil {
				s.logger.Warn(ctx, "allocation failed", zap.Error(err))
			}
		}
	}
}

// Shutdown stops the allocation loop.
func (s *Service) Shutdown() {
	s.closeOnce.Do(func() { close(s.shutdownCh) })
}

// Update loads an instance, applies fn and saves the result under the
// allocator lock. It returns a copy of the saved instance.
func (s *Service) Update(ctx context.Context, id string, fn func(instance *execution.Instance) error) (*execution.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(ctx, id, fn)
}

func (s *Service) update(ctx context.Context, id string, fn func(instance *execution.Instance) error) (*execution.Instance, error) {
	instance, err := s.instanceDAO.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	if err = fn(instance); err != nil {
		return nil, err
	}
	if err = s.instanceDAO.Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save instance %s: %w", id, err)
	}
	if s.progress != nil {
		s.progress.Track(instance.ID, instance.Name).Sync(instance.Progress())
	}
	return instance.Clone(), nil
}

// Allocate performs one pass over every active instance.
func (s *Service) Allocate(ctx context.Context) error {
	instances, err := s.instanceDAO.List(ctx, dao.NewParameter(criteria.StatusParameter,
		string(execution.WorkflowRunning), string(execution.WorkflowWaitingForInput)))
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}
	var errs []error
	for _, instance := range instances {
		if _, err := s.Update(ctx, instance.ID, func(instance *execution.Instance) error {
			return s.advance(ctx, instance)
		}); err != nil {
			errs = append(errs, fmt.Errorf("instance %s: %w", instance.ID, err))
		}
	}
	return errors.Join(errs...)
}

// advance folds finished executions into the instance, schedules ready steps
// and derives the workflow status.
func (s *Service) advance(ctx context.Context, instance *execution.Instance) error {
	if !instance.GetStatus().IsActive() {
		return nil
	}
	if err := s.reconcile(ctx, instance); err != nil {
		return err
	}
	if instance.Evaluate() == execution.WorkflowFailed {
		s.fail(ctx, instance)
		return nil
	}
	for _, step := range instance.ReadySteps() {
		if err := s.schedule(ctx, instance, step); err != nil {
			return err
		}
	}
	s.transition(ctx, instance, instance.Evaluate())
	return nil
}

func (s *Service) reconcile(ctx context.Context, instance *execution.Instance) error {
	for _, step := range instance.Workflow.Steps {
		status, _ := instance.StepStatus(step.ID)
		if status != execution.StepRunning && status != execution.StepWaitingForInput {
			continue
		}
		executionID := instance.ExecutionID(step.ID)
		if executionID == "" {
			continue
		}
		anExecution, err := s.executionDAO.Load(ctx, executionID)
		if err != nil {
			return err
		}
		if anExecution == nil {
			continue
		}
		switch anExecution.GetState() {
		case execution.StepCompleted:
			instance.SetOutput(step.ID, anExecution.Output)
			instance.SetStepStatus(step.ID, execution.StepCompleted)
			s.emit(ctx, instance, anExecution.Context(event.TypeStepCompleted, step), anExecution)
		case execution.StepFailed:
			instance.SetError(step.ID, anExecution.Error)
			instance.SetStepStatus(step.ID, execution.StepFailed)
			s.logger.Warn(ctx, "step failed",
				zap.String("instance", instance.ID),
				zap.String("step", step.Name),
				zap.String("error", anExecution.Error))
			s.emit(ctx, instance, anExecution.Context(event.TypeStepFailed, step), anExecution)
		case execution.StepWaitingForInput:
			if status == execution.StepRunning {
				instance.SetStepStatus(step.ID, execution.StepWaitingForInput)
			}
		case execution.StepSkipped:
			instance.SetStepStatus(step.ID, execution.StepSkipped)
		}
	}
	return nil
}

func (s *Service) schedule(ctx context.Context, instance *execution.Instance, step *graph.Step) error {
	anExecution := execution.NewExecution(instance.ID, step)
	if err := s.executionDAO.Save(ctx, anExecution); err != nil {
		return err
	}
	if err := s.queue.Publish(ctx, anExecution); err != nil {
		return fmt.Errorf("failed to publish execution for step %s: %w", step.Name, err)
	}
	instance.SetExecution(step.ID, anExecution.ID)
	instance.SetStepStatus(step.ID, execution.StepRunning)
	s.logger.Debug(ctx, "step scheduled", zap.String("instance", instance.ID), zap.String("step", step.Name))
	s.emit(ctx, instance, anExecution.Context(event.TypeStepScheduled, step), anExecution)
	return nil
}

// fail marks the workflow failed and skips every unfinished step.
func (s *Service) fail(ctx context.Context, instance *execution.Instance) {
	for _, id := range instance.SkipRemaining() {
		step := instance.Workflow.Step(id)
		s.emit(ctx, instance, &event.Context{InstanceID: instance.ID, StepID: id, StepName: step.Name, EventType: event.TypeStepSkipped}, nil)
	}
	s.transition(ctx, instance, execution.WorkflowFailed)
}

func (s *Service) transition(ctx context.Context, instance *execution.Instance, status execution.WorkflowStatus) {
	previous := instance.GetStatus()
	if previous == status {
		return
	}
	instance.SetStatus(status)
	var eventType string
	switch status {
	case execution.WorkflowCompleted:
		eventType = event.TypeWorkflowCompleted
	case execution.WorkflowFailed:
		eventType = event.TypeWorkflowFailed
	case execution.WorkflowWaitingForInput:
		eventType = event.TypeWorkflowWaiting
	}
	if status.IsTerminal() {
		var endErr error
		if status == execution.WorkflowFailed {
			endErr = fmt.Errorf("workflow failed with %d errors", len(instance.Errors))
		}
		tracing.EndSpan(instance.Span, endErr)
		instance.Span = nil
		s.logger.Info(ctx, "workflow finished",
			zap.String("instance", instance.ID),
			zap.String("workflow", instance.Name),
			zap.String("status", string(status)))
	}
	if eventType != "" {
		s.emit(ctx, instance, &event.Context{InstanceID: instance.ID, EventType: eventType}, instance.Clone())
	}
}

func (s *Service) emit(ctx context.Context, instance *execution.Instance, eCtx *event.Context, data interface{}) {
	eCtx.Workflow = instance.Name
	event.Emit(ctx, s.events, eCtx, data)
}
