package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/model/graph"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/dao/criteria"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/executor"
	"github.com/avrabe/raco/service/messaging"
	"go.uber.org/zap"
)

// Config represents processor configuration
type Config struct {
	// WorkerCount is the number of workers processing executions
	WorkerCount int

	// MaxTaskRetries is the retry count used when a step has no retry settings
	MaxTaskRetries int

	// RetryDelay is the delay between retry attempts
	RetryDelay time.Duration
}

// DefaultConfig returns the default processor configuration
func DefaultConfig() Config {
	return Config{
		WorkerCount:    4,
		MaxTaskRetries: 1,
		RetryDelay:     time.Second,
	}
}

// Service consumes step executions
type Service struct {
	config       Config
	instanceDAO  dao.Service[string, execution.Instance]
	executionDAO dao.Service[string, execution.Execution]

	queue    messaging.Queue[execution.Execution]
	executor executor.Service
	events   *event.Service
	logger   *logging.Logger

	workers    []*worker
	workerWg   sync.WaitGroup
	timers     sync.WaitGroup
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

type worker struct {
	id       int
	service  *Service
	ctx      context.Context
	cancelFn context.CancelFunc
}

// shouldRetry returns (retry?, delay)
func (s *Service) shouldRetry(cfg *graph.Retry, attempts int) (bool, time.Duration) {
	if cfg == nil {
		if attempts >= s.config.MaxTaskRetries {
			return false, 0
		}
		return true, s.config.RetryDelay
	}

	if strings.ToLower(cfg.Type) == "none" {
		return false, 0
	}

	max := cfg.MaxRetries
	if max == 0 {
		max = s.config.MaxTaskRetries
	}
	if attempts >= max {
		return false, 0
	}

	baseDelay := s.config.RetryDelay
	if cfg.Delay != "" {
		if d, err := time.ParseDuration(cfg.Delay); err == nil {
			baseDelay = d
		}
	}

	switch strings.ToLower(cfg.Type) {
	case "exponential":
		mult := cfg.Multiplier
		if mult <= 1 {
			mult = 2
		}
		delay := float64(baseDelay) * math.Pow(mult, float64(attempts))
		if cfg.MaxDelay != "" {
			if md, err := time.ParseDuration(cfg.MaxDelay); err == nil && time.Duration(delay) > md {
				delay = float64(md)
			}
		}
		return true, time.Duration(delay)
	default: // fixed
		return true, baseDelay
	}
}

// New creates a new processor service
func New(options ...Option) (*Service, error) {
	s := &Service{
		config:     DefaultConfig(),
		shutdownCh: make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if s.queue == nil {
		return nil, fmt.Errorf("message queue is required")
	}
	if s.instanceDAO == nil {
		return nil, fmt.Errorf("instanceDAO service is required")
	}
	if s.executionDAO == nil {
		return nil, fmt.Errorf("executionDAO service is required")
	}
	if s.config.WorkerCount <= 0 {
		s.config.WorkerCount = 1
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.logger = s.logger.Named("processor")
	return s, nil
}

// Start begins consuming executions
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.config.WorkerCount; i++ {
		workerCtx, cancel := context.WithCancel(ctx)
		worker := &worker{
			id:       i,
			service:  s,
			ctx:      workerCtx,
			cancelFn: cancel,
		}
		s.workers = append(s.workers, worker)
		s.workerWg.Add(1)
		go worker.run()
	}
	return nil
}

func (w *worker) run() {
	defer w.service.workerWg.Done()
	for {
		msg, err := w.service.queue.Consume(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			// transient error, e.g. a consume timeout
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if msg == nil {
			continue
		}
		if pErr := w.service.processMessage(w.ctx, msg); pErr != nil {
			w.service.logger.Warn(w.ctx, "failed to process message", zap.Int("worker", w.id), zap.Error(pErr))
		}
	}
}

// processMessage handles a single step execution message
func (s *Service) processMessage(ctx context.Context, message messaging.Message[execution.Execution]) error {
	anExecution := message.T()

	instance, err := s.instanceDAO.Load(ctx, anExecution.InstanceID)
	if err != nil {
		return message.Nack(err)
	}
	if instance == nil || instance.GetStatus().IsTerminal() {
		return s.drop(ctx, message, anExecution)
	}
	if stored, _ := s.executionDAO.Load(ctx, anExecution.ID); stored != nil && stored.GetState().IsTerminal() {
		return message.Ack()
	}

	anExecution.Start()
	if err := s.executionDAO.Save(ctx, anExecution); err != nil {
		return message.Nack(err)
	}

	result, err := s.executor.Execute(ctx, anExecution, instance)
	if err != nil {
		def := instance.LookupStep(anExecution.StepID)
		var retryCfg *graph.Retry
		if def != nil {
			retryCfg = def.Retry
		}
		if !executor.IsPermanent(err) {
			if retry, delay := s.shouldRetry(retryCfg, anExecution.Attempts); retry {
				anExecution.Retry(err, delay)
				if daoErr := s.executionDAO.Save(ctx, anExecution); daoErr != nil {
					return message.Nack(fmt.Errorf("error %w and failed to save execution: %v", err, daoErr))
				}
				s.logger.Info(ctx, "retrying step",
					zap.String("instance", anExecution.InstanceID),
					zap.String("step", anExecution.StepName),
					zap.Int("attempt", anExecution.Attempts),
					zap.Duration("delay", delay),
					zap.Error(err))
				eCtx := anExecution.Context(event.TypeStepRetry, def)
				eCtx.Workflow = instance.Name
				event.Emit(ctx, s.events, eCtx, anExecution.Clone())
				s.schedule(anExecution.Clone(), delay)
				return message.Ack()
			}
		}
		anExecution.Fail(err)
		if daoErr := s.executionDAO.Save(ctx, anExecution); daoErr != nil {
			return message.Nack(fmt.Errorf("encounter error: %w, and failed to save execution: %v", err, daoErr))
		}
		return message.Ack()
	}

	switch result.Status {
	case execution.StepWaitingForInput:
		anExecution.Wait()
	case execution.StepFailed:
		anExecution.Fail(errors.New(result.Error))
	default:
		anExecution.Complete(result.Output)
	}
	if err := s.executionDAO.Save(ctx, anExecution); err != nil {
		return message.Nack(err)
	}
	return message.Ack()
}

// drop discards executions of missing, cancelled or finished instances.
func (s *Service) drop(ctx context.Context, message messaging.Message[execution.Execution], anExecution *execution.Execution) error {
	anExecution.Skip()
	if err := s.executionDAO.Save(ctx, anExecution); err != nil {
		return message.Nack(err)
	}
	s.logger.Debug(ctx, "execution dropped", zap.String("execution", anExecution.ID))
	return message.Ack()
}

// Recover requeues the unfinished executions of active instances, e.g. after
// a restart over a persistent store. Pending retries keep their delay; an
// execution found running was interrupted and runs again.
func (s *Service) Recover(ctx context.Context) (int, error) {
	executions, err := s.executionDAO.List(ctx, dao.NewParameter(criteria.StatusParameter,
		string(execution.StepPending), string(execution.StepRunning)))
	if err != nil {
		return 0, fmt.Errorf("failed to list executions: %w", err)
	}
	recovered := 0
	for _, anExecution := range executions {
		instance, err := s.instanceDAO.Load(ctx, anExecution.InstanceID)
		if err != nil {
			return recovered, err
		}
		if instance == nil || !instance.GetStatus().IsActive() {
			continue
		}
		if instance.ExecutionID(anExecution.StepID) != anExecution.ID {
			continue
		}
		var delay time.Duration
		if anExecution.RunAfter != nil {
			delay = time.Until(*anExecution.RunAfter)
		}
		if delay > 0 {
			s.schedule(anExecution, delay)
		} else if err = s.queue.Publish(ctx, anExecution); err != nil {
			return recovered, fmt.Errorf("failed to requeue execution %s: %w", anExecution.ID, err)
		}
		recovered++
		s.logger.Info(ctx, "execution recovered",
			zap.String("instance", anExecution.InstanceID),
			zap.String("step", anExecution.StepName),
			zap.String("state", string(anExecution.GetState())))
	}
	return recovered, nil
}

// schedule republishes an execution once its retry delay elapsed.
func (s *Service) schedule(anExecution *execution.Execution, delay time.Duration) {
	s.timers.Add(1)
	go func() {
		defer s.timers.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-s.shutdownCh:
			return
		case <-timer.C:
		}
		if err := s.queue.Publish(context.Background(), anExecution); err != nil {
			s.logger.Error(context.Background(), "failed to requeue execution", zap.String("execution", anExecution.ID), zap.Error(err))
		}
	}()
}

// Shutdown stops the workers and pending retries
func (s *Service) Shutdown() {
	s.closeOnce.Do(func() { close(s.shutdownCh) })
	for _, worker := range s.workers {
		worker.cancelFn()
	}
	s.workerWg.Wait()
	s.timers.Wait()
}
