package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/image-tasks/shared/correlation"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func consumerConfig() Config {
	return Config{
		Host:             "localhost",
		Port:             5672,
		QueueName:        "image_tasks",
		MaxPriority:      10,
		ErrorTimeout:     7 * time.Second,
		RequeueOnFailure: true,
	}
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func delivery(acker amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: []byte(body)}
}

func runConsume(t *testing.T, c *Consumer, handler Handler[testPayload]) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Consume(ctx, c, "worker-1", handler)
	}()
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after cancel")
	}
}

func TestNewConsumer_RequiresQueue(t *testing.T) {
	c, err := NewConsumer(Config{Host: "localhost"}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue name")
	assert.Nil(t, c)
}

func TestConsume_AckNackPolicy(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 8)}
	dialer := &dialSequence{results: []dialResult{{session: &fakeSession{ch: ch}}}}
	sleeper := &sleepRecorder{}
	c, err := NewConsumer(consumerConfig(), discardLogger(),
		WithConsumerDialer(dialer.dial),
		WithConsumerSleep(sleeper.sleep),
	)
	require.NoError(t, err)

	var mu sync.Mutex
	var handled []int64
	var traces []string
	handler := func(ctx context.Context, msg Envelope[testPayload]) error {
		mu.Lock()
		handled = append(handled, msg.Payload.TaskID)
		traces = append(traces, correlation.ID(ctx))
		mu.Unlock()

		switch msg.Payload.TaskID {
		case 2:
			return errors.New("database unavailable")
		case 3:
			panic("unexpected nil")
		}
		return nil
	}

	acker := &fakeAcker{}
	ch.deliveries <- delivery(acker, 1, `not json`)
	ch.deliveries <- delivery(acker, 2, `{"payload":{"task_id":0},"trace_id":"t0"}`)
	ch.deliveries <- delivery(acker, 3, `{"payload":{"task_id":1},"trace_id":"t1"}`)
	ch.deliveries <- delivery(acker, 4, `{"payload":{"task_id":2},"trace_id":"t2"}`)
	ch.deliveries <- delivery(acker, 5, `{"payload":{"task_id":3}}`)

	cancel, done := runConsume(t, c, handler)

	require.Eventually(t, func() bool {
		acks, nacks := acker.snapshot()
		return len(acks)+len(nacks) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitStopped(t, done)

	acks, nacks := acker.snapshot()
	assert.Equal(t, []uint64{1, 2, 3}, acks, "malformed and successful messages are acked")
	assert.Equal(t, []nackCall{{tag: 4, requeue: true}, {tag: 5, requeue: true}}, nacks)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, handled, "malformed messages never reach the handler")
	assert.Equal(t, []string{"t1", "t2", correlation.DefaultID}, traces)

	assert.Equal(t, []int{1}, ch.qos, "fair dispatch, one message in flight")
	require.Len(t, ch.declared, 1)
	assert.True(t, ch.declared[0].durable)
	assert.Equal(t, amqp.Table{"x-max-priority": int32(10)}, ch.declared[0].args)
	assert.Empty(t, sleeper.recorded())
}

func TestConsume_NackWithoutRequeue(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	dialer := &dialSequence{results: []dialResult{{session: &fakeSession{ch: ch}}}}
	cfg := consumerConfig()
	cfg.RequeueOnFailure = false
	c, err := NewConsumer(cfg, discardLogger(), WithConsumerDialer(dialer.dial))
	require.NoError(t, err)

	acker := &fakeAcker{}
	ch.deliveries <- delivery(acker, 9, `{"payload":{"task_id":4}}`)

	cancel, done := runConsume(t, c, func(context.Context, Envelope[testPayload]) error {
		return errors.New("fail")
	})

	require.Eventually(t, func() bool {
		_, nacks := acker.snapshot()
		return len(nacks) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	waitStopped(t, done)

	_, nacks := acker.snapshot()
	assert.Equal(t, []nackCall{{tag: 9, requeue: false}}, nacks)
}

func TestConsume_RestartsAfterConnectionFailure(t *testing.T) {
	first := &fakeChannel{deliveries: make(chan amqp.Delivery)}
	second := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	dialer := &dialSequence{results: []dialResult{
		{err: errors.New("connection refused")},
		{session: &fakeSession{ch: first}},
		{session: &fakeSession{ch: second}},
	}}
	sleeper := &sleepRecorder{}
	c, err := NewConsumer(consumerConfig(), discardLogger(),
		WithConsumerDialer(dialer.dial),
		WithConsumerSleep(sleeper.sleep),
	)
	require.NoError(t, err)

	// broker drops the first connection
	close(first.deliveries)

	acker := &fakeAcker{}
	second.deliveries <- delivery(acker, 1, `{"payload":{"task_id":8}}`)

	handled := make(chan int64, 1)
	cancel, done := runConsume(t, c, func(_ context.Context, msg Envelope[testPayload]) error {
		handled <- msg.Payload.TaskID
		return nil
	})

	select {
	case id := <-handled:
		assert.Equal(t, int64(8), id)
	case <-time.After(2 * time.Second):
		t.Fatal("message not handled after reconnect")
	}

	require.Eventually(t, func() bool {
		acks, _ := acker.snapshot()
		return len(acks) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitStopped(t, done)

	assert.Equal(t, 3, dialer.count())
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, sleeper.recorded())
}

func TestConsume_HandlerContextSurvivesShutdown(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	dialer := &dialSequence{results: []dialResult{{session: &fakeSession{ch: ch}}}}
	c, err := NewConsumer(consumerConfig(), discardLogger(), WithConsumerDialer(dialer.dial))
	require.NoError(t, err)

	acker := &fakeAcker{}
	ch.deliveries <- delivery(acker, 1, `{"payload":{"task_id":1}}`)

	started := make(chan struct{})
	release := make(chan struct{})
	var handlerCtxErr error
	cancel, done := runConsume(t, c, func(ctx context.Context, _ Envelope[testPayload]) error {
		close(started)
		<-release
		handlerCtxErr = ctx.Err()
		return nil
	})

	<-started
	cancel()
	close(release)
	waitStopped(t, done)

	assert.NoError(t, handlerCtxErr)
	acks, _ := acker.snapshot()
	assert.Equal(t, []uint64{1}, acks)
}

func TestConsume_DeadLetterQueueArgs(t *testing.T) {
	ch := &fakeChannel{deliveries: make(chan amqp.Delivery, 1)}
	dialer := &dialSequence{results: []dialResult{
		{session: &fakeSession{ch: ch}},
		{session: &fakeSession{ch: ch}},
	}}
	cfg := consumerConfig()
	cfg.RequeueOnFailure = false
	cfg.DeadLetterRoutingKey = "image_tasks_dlq"
	sleeper := &sleepRecorder{}
	c, err := NewConsumer(cfg, discardLogger(),
		WithConsumerDialer(dialer.dial),
		WithConsumerSleep(sleeper.sleep),
	)
	require.NoError(t, err)

	require.NoError(t, c.DeclareDeadLetterQueue(context.Background(), "image_tasks_dlq", 30))

	acker := &fakeAcker{}
	ch.deliveries <- delivery(acker, 1, `{"payload":{"task_id":4}}`)

	cancel, done := runConsume(t, c, func(context.Context, Envelope[testPayload]) error {
		return errors.New("database unavailable")
	})
	require.Eventually(t, func() bool {
		_, nacks := acker.snapshot()
		return len(nacks) == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	waitStopped(t, done)

	_, nacks := acker.snapshot()
	assert.Equal(t, []nackCall{{tag: 1, requeue: false}}, nacks, "failed messages go to the dead-letter queue")

	ch.mu.Lock()
	defer ch.mu.Unlock()
	require.Len(t, ch.declared, 2)

	dlq := ch.declared[0]
	assert.Equal(t, "image_tasks_dlq", dlq.name)
	assert.Equal(t, amqp.Table{
		"x-message-ttl":             int32(30000),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": "image_tasks",
		"x-max-priority":            int32(10),
	}, dlq.args, "expired messages return to the work queue")

	work := ch.declared[1]
	assert.Equal(t, "image_tasks", work.name)
	assert.Equal(t, amqp.Table{
		"x-max-priority":            int32(10),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": "image_tasks_dlq",
	}, work.args)
}
