package memory

import (
	"context"

	"github.com/avrabe/raco/internal/logging"
	"github.com/avrabe/raco/service/approval"
)

type Option func(*service)

// DecisionHook runs before a decision is stored; an error rejects the decision.
type DecisionHook func(ctx context.Context, request *approval.Request, decision *approval.Decision) error

// WithOnDecision lets the engine resume the waiting step.
func WithOnDecision(hook DecisionHook) Option {
	return func(s *service) { s.onDecision = hook }
}

// WithLogger sets the service logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *service) { s.logger = logger }
}
