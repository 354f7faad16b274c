// Package nats implements messaging.Queue on top of core NATS subjects with a
// queue-group subscription, so several engine processes can share one stream
// of step executions.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avrabe/raco/service/messaging"
	"github.com/nats-io/nats.go"
)

// ErrProcessed is returned when a message is acked or nacked twice.
var ErrProcessed = errors.New("message already processed")

// Config for the NATS queue
type Config struct {
	Subject    string
	QueueGroup string
	MaxRetries int
	RetryDelay time.Duration
	Buffer     int
}

// DefaultConfig returns a standard configuration for subject
func DefaultConfig(subject string) Config {
	return Config{
		Subject:    subject,
		QueueGroup: "raco",
		MaxRetries: 3,
		RetryDelay: 100 * time.Millisecond,
		Buffer:     256,
	}
}

// DeadLetterSubject returns the subject receiving messages out of retries.
func (c Config) DeadLetterSubject() string {
	return c.Subject + ".dlq"
}

type envelope[T any] struct {
	Attempt int `json:"attempt"`
	Payload T   `json:"payload"`
}

// Queue implements messaging.Queue backed by NATS
type Queue[T any] struct {
	conn   *nats.Conn
	config Config
	sub    *nats.Subscription
	msgs   chan *nats.Msg
}

// NewQueue subscribes to config.Subject within config.QueueGroup.
func NewQueue[T any](conn *nats.Conn, config Config) (*Queue[T], error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if config.Subject == "" {
		return nil, errors.New("nats subject is required")
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig(config.Subject).Buffer
	}
	q := &Queue[T]{conn: conn, config: config, msgs: make(chan *nats.Msg, config.Buffer)}
	sub, err := conn.ChanQueueSubscribe(config.Subject, config.QueueGroup, q.msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", config.Subject, err)
	}
	q.sub = sub
	if err := conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("failed to flush subscription: %w", err)
	}
	return q, nil
}

// Publish adds a new item to the queue
func (q *Queue[T]) Publish(ctx context.Context, t *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.publish(q.config.Subject, &envelope[T]{Payload: *t})
}

func (q *Queue[T]) publish(subject string, e *envelope[T]) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := q.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Consume retrieves a single item from the queue
func (q *Queue[T]) Consume(ctx context.Context) (messaging.Message[T], error) {
	select {
	case msg, ok := <-q.msgs:
		if !ok {
			return nil, errors.New("nats queue closed")
		}
		e := &envelope[T]{}
		if err := json.Unmarshal(msg.Data, e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message on %s: %w", msg.Subject, err)
		}
		return &Message[T]{queue: q, envelope: e}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close drains the subscription.
func (q *Queue[T]) Close() error {
	if q.sub == nil {
		return nil
	}
	return q.sub.Unsubscribe()
}

// Message implements messaging.Message for NATS deliveries
type Message[T any] struct {
	queue     *Queue[T]
	envelope  *envelope[T]
	mu        sync.Mutex
	processed bool
}

// T returns the message payload
func (m *Message[T]) T() *T {
	return &m.envelope.Payload
}

// Attempts returns how many times the message was nacked before delivery.
func (m *Message[T]) Attempts() int {
	return m.envelope.Attempt
}

// Ack acknowledges the message; core NATS needs no broker round trip.
func (m *Message[T]) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	return nil
}

// Nack republishes the message after RetryDelay, or sends it to the dead
// letter subject once MaxRetries is exceeded.
func (m *Message[T]) Nack(_ error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed {
		return ErrProcessed
	}
	m.processed = true
	next := &envelope[T]{Attempt: m.envelope.Attempt + 1, Payload: m.envelope.Payload}
	if next.Attempt > m.queue.config.MaxRetries {
		return m.queue.publish(m.queue.config.DeadLetterSubject(), next)
	}
	time.AfterFunc(m.queue.config.RetryDelay, func() {
		_ = m.queue.publish(m.queue.config.Subject, next)
	})
	return nil
}

var _ messaging.Queue[any] = (*Queue[any])(nil)
