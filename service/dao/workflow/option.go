package workflow

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/service/meta"
)

type Option func(*Service)

// WithMetaService sets the document loader.
func WithMetaService(meta *meta.Service) Option {
	return func(s *Service) {
		s.metaService = meta
	}
}

// WithStepsNodeName sets the key holding step definitions (default "steps").
func WithStepsNodeName(name string) Option {
	return func(s *Service) {
		s.stepsNodeName = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
