package event

import (
	"context"
	"errors"
	"sync"

	"github.com/avrabe/raco/internal/logging"
	"go.uber.org/zap"
)

// Service fans events out to registered sinks. Sink failures are logged and
// returned but never stop delivery to the remaining sinks.
type Service struct {
	sinks  []Sink
	logger *logging.Logger
	mux    sync.RWMutex
}

func New(opts ...Option) *Service {
	ret := &Service{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// AddSink registers an additional sink.
func (s *Service) AddSink(sink Sink) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.sinks = append(s.sinks, sink)
}

// SetListener registers handler as a sink.
func (s *Service) SetListener(handler func(*Event[any])) {
	s.AddSink(SinkFunc(func(_ context.Context, e *Event[any]) error {
		handler(e)
		return nil
	}))
}

// Publish delivers the event to every sink.
func (s *Service) Publish(ctx context.Context, e *Event[any]) error {
	if s == nil || e == nil {
		return nil
	}
	s.mux.RLock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mux.RUnlock()
	var errs []error
	for _, sink := range sinks {
		if err := sink.Handle(ctx, e); err != nil {
			s.logger.Warn(ctx, "event sink failed", zap.String("event", e.Context.EventType), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherOf returns a publisher for the provided type
func PublisherOf[T any](s *Service) (*Publisher[T], error) {
	if s == nil {
		return nil, errors.New("event service is nil")
	}
	return NewPublisher[T](s), nil
}

// Emit is a shorthand building and publishing an event, ignoring a nil service.
func Emit[T any](ctx context.Context, s *Service, eCtx *Context, data T) {
	if s == nil {
		return
	}
	_ = s.Publish(ctx, NewEvent[any](eCtx, data))
}
