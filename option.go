package raco

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/mcp/client"
	"github.com/avrabe/raco/model/types"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/runtime/execution"
	"github.com/avrabe/raco/service/dao"
	"github.com/avrabe/raco/service/event"
	"github.com/avrabe/raco/service/executor"
	"github.com/avrabe/raco/service/messaging"
	"github.com/avrabe/raco/service/meta"
	"github.com/avrabe/raco/tracing"
	"github.com/viant/afs/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the engine service.
type Option func(s *Service)

// WithConfig sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger shared by every engine service.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEventService sets the event service.
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.events = service
	}
}

// WithEventSinks adds sinks to the event service.
func WithEventSinks(sinks ...event.Sink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithProgressListener is notified whenever instance progress changes.
func WithProgressListener(fn func(progress.Progress)) Option {
	return func(s *Service) {
		s.onProgress = fn
	}
}

// WithPolicy sets the default policy for human steps and actions.
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithMetaService sets the definition loader.
func WithMetaService(service *meta.Service) Option {
	return func(s *Service) {
		s.metaService = service
	}
}

// WithMetaBaseURL sets the base location of workflow definitions.
func WithMetaBaseURL(url string) Option {
	return func(s *Service) {
		s.metaBaseURL = url
	}
}

// WithMetaFsOptions sets afs options used when loading definitions.
func WithMetaFsOptions(options ...storage.Option) Option {
	return func(s *Service) {
		s.metaFsOptions = options
	}
}

// WithExtensionServices registers additional action services.
func WithExtensionServices(services ...types.Service) Option {
	return func(s *Service) {
		s.extensionServices = append(s.extensionServices, services...)
	}
}

// WithHub registers the mcp, fs and process actions backed by hub.
func WithHub(hub *client.Hub) Option {
	return func(s *Service) {
		s.hub = hub
	}
}

// WithQueue sets the step execution queue.
func WithQueue(queue messaging.Queue[execution.Execution]) Option {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithInstanceDAO sets workflow instance persistence.
func WithInstanceDAO(dao dao.Service[string, execution.Instance]) Option {
	return func(s *Service) {
		s.runtime.instanceDAO = dao
	}
}

// WithExecutionDAO sets step execution persistence.
func WithExecutionDAO(dao dao.Service[string, execution.Execution]) Option {
	return func(s *Service) {
		s.runtime.executionDAO = dao
	}
}

// WithExecutorOptions passes extra options to the step executor.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(s *Service) {
		s.executorOptions = append(s.executorOptions, opts...)
	}
}

// WithTracing installs the stdout (or file) span exporter. The first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter installs a custom span exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
