package approval

import (
	"context"
	"errors"

	"github.com/avrabe/raco/service/messaging"
)

var (
	ErrRequestNotFound = errors.New("approval request not found")
	ErrAlreadyDecided  = errors.New("approval request already decided")
	ErrExpired         = errors.New("approval request expired")
)

// Service defines the approval service interface.
type Service interface {
	Request(ctx context.Context, r *Request) error
	ListPending(ctx context.Context, filters ...Filter) ([]*Request, error)
	Respond(ctx context.Context, id string, approved bool, input interface{}, reason string) (*Decision, error)
	Decision(ctx context.Context, id string) (*Decision, error)
	// Expire closes the pending requests matching filters and returns them.
	Expire(ctx context.Context, filters ...Filter) ([]*Request, error)
	Queue() messaging.Queue[Event]
}
