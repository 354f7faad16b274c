package allocator

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/progress"
	"github.com/avrabe/raco/service/event"
)

type Option func(*Service)

// WithEvents sets the event service.
func WithEvents(events *event.Service) Option {
	return func(s *Service) { s.events = events }
}

// WithProgress keeps per-instance progress trackers in sync.
func WithProgress(registry *progress.Registry) Option {
	return func(s *Service) { s.progress = registry }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) { s.logger = logger }
}
