package event

import (
	"context"
)

// Publisher publishes typed events through the owning service.
type Publisher[T any] struct {
	service *Service
}

func NewPublisher[T any](service *Service) *Publisher[T] {
	return &Publisher[T]{service: service}
}

func (p *Publisher[T]) Publish(ctx context.Context, event *Event[T]) error {
	if p == nil || p.service == nil {
		return nil
	}
	return p.service.Publish(ctx, &Event[any]{
		Context:   event.Context,
		CreatedAt: event.CreatedAt,
		Metadata:  event.Metadata,
		Data:      event.Data,
	})
}
