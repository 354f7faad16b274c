package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/avrabe/raco/internal/natstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type job struct {
	ID   string `json:"id"`
	Step string `json:"step"`
}

func TestQueue_PublishConsume(t *testing.T) {
	nc := natstest.Connect(t)
	queue, err := NewQueue[job](nc, DefaultConfig("raco.test.jobs"))
	require.NoError(t, err)
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, queue.Publish(ctx, &job{ID: "1", Step: "build"}))

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, &job{ID: "1", Step: "build"}, message.T())
	assert.NoError(t, message.Ack())
	assert.ErrorIs(t, message.Ack(), ErrProcessed)
}

func TestQueue_NackRetriesThenDeadLetter(t *testing.T) {
	nc := natstest.Connect(t)
	config := DefaultConfig("raco.test.retry")
	config.MaxRetries = 1
	config.RetryDelay = 5 * time.Millisecond
	queue, err := NewQueue[job](nc, config)
	require.NoError(t, err)
	defer queue.Close()

	dlq, err := nc.SubscribeSync(config.DeadLetterSubject())
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, queue.Publish(ctx, &job{ID: "flaky"}))

	first, err := queue.Consume(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Nack(nil))

	second, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.(*Message[job]).Attempts())
	require.NoError(t, second.Nack(nil))

	msg, err := dlq.NextMsg(time.Second)
	require.NoError(t, err)
	dead := &envelope[job]{}
	require.NoError(t, json.Unmarshal(msg.Data, dead))
	assert.Equal(t, "flaky", dead.Payload.ID)
	assert.Equal(t, 2, dead.Attempt)
}

func TestQueue_ConsumeHonoursContext(t *testing.T) {
	nc := natstest.Connect(t)
	queue, err := NewQueue[job](nc, DefaultConfig("raco.test.idle"))
	require.NoError(t, err)
	defer queue.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = queue.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
