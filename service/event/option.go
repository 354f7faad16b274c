package event

import "github.com/avrabe/raco/internal/logging"

type Option func(s *Service)

// WithSink adds a sink receiving every published event.
func WithSink(sink Sink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sink)
	}
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
