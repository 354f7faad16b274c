package processor

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/executor"
	"github.com/avrabe/raco/service/messaging"
)

type Option func(*Service)

// WithInstanceDAO sets the instance store implementation
func WithInstanceDAO(instanceDAO dao.Service[string, execution.Instance]) Option {
	return func(s *Service) {
		s.instanceDAO = instanceDAO
	}
}

// WithExecutionDAO sets the execution store implementation
func WithExecutionDAO(executionDAO dao.Service[string, execution.Execution]) Option {
	return func(s *Service) {
		s.executionDAO = executionDAO
	}
}

// WithMessageQueue sets the message queue implementation
func WithMessageQueue(queue messaging.Queue[execution.Execution]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithExecutor sets the step executor for the service
func WithExecutor(executor executor.Service) Option {
	return func(s *Service) {
		s.executor = executor
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithEvents sets the event service.
func WithEvents(events *event.Service) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
