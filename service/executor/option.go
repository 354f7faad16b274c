package executor

import (
	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/policy"
	"github.com/avrabe/raco/service/approval"
	"github.com/avrabe/raco/service/event"
)

// Option is used to customise the executor instance.
type Option func(*service)

// WithApproval sets the service receiving human input requests.
func WithApproval(approvals approval.Service) Option {
	return func(s *service) { s.approvals = approvals }
}

// WithEvents sets the event service.
func WithEvents(events *event.Service) Option {
	return func(s *service) { s.events = events }
}

// WithPolicy sets the policy applied to instances without their own.
func WithPolicy(p *policy.Policy) Option {
	return func(s *service) { s.policy = p }
}

// WithLogger sets the executor logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *service) { s.logger = logger }
}
