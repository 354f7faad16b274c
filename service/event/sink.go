package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avrabe/raco/internal/logging"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Sink receives published events.
type Sink interface {
	Handle(ctx context.Context, e *Event[any]) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e *Event[any]) error

func (f SinkFunc) Handle(ctx context.Context, e *Event[any]) error { return f(ctx, e) }

// LogSink writes events to a zap logger at debug level.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Handle(ctx context.Context, e *Event[any]) error {
	c := e.Context
	s.logger.Debug(ctx, c.EventType,
		zap.String("instance_id", c.InstanceID),
		zap.String("workflow", c.Workflow),
		zap.String("step_id", c.StepID),
		zap.String("step_name", c.StepName),
		zap.String("service", c.Service),
		zap.String("method", c.Method),
	)
	return nil
}

// NatsSink publishes JSON encoded events on raco.workflow.<instance>.<event>.
type NatsSink struct {
	conn *nats.Conn
}

func NewNatsSink(conn *nats.Conn) *NatsSink {
	return &NatsSink{conn: conn}
}

func (s *NatsSink) Handle(_ context.Context, e *Event[any]) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", e.Context.EventType, err)
	}
	if err := s.conn.Publish(e.Context.Subject(), data); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", e.Context.Subject(), err)
	}
	return nil
}
