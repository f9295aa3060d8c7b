package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type testPayload struct {
	TaskID int64 `json:"task_id"`
}

func (p testPayload) Validate() error {
	if p.TaskID <= 0 {
		return errors.New("task_id must be positive")
	}
	return nil
}

type publishCall struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type declareCall struct {
	name    string
	durable bool
	args    amqp.Table
}

type fakeChannel struct {
	mu         sync.Mutex
	published  []publishCall
	declared   []declareCall
	qos        []int
	consumed   []string
	closed     bool
	publishErr func(call int) error
	deliveries chan amqp.Delivery
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publishErr != nil {
		if err := c.publishErr(len(c.published)); err != nil {
			c.published = append(c.published, publishCall{})
			return err
		}
	}
	c.published = append(c.published, publishCall{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declared = append(c.declared, declareCall{name: name, durable: durable, args: args})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qos = append(c.qos, prefetchCount)
	return nil
}

func (c *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumed = append(c.consumed, queue)
	return c.deliveries, nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) publishedCalls() []publishCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]publishCall(nil), c.published...)
}

type fakeSession struct {
	ch     *fakeChannel
	closed bool
}

func (s *fakeSession) Channel() (Channel, error) { return s.ch, nil }
func (s *fakeSession) Close() error              { s.closed = true; return nil }

// dialSequence returns a Dialer that hands out the given results in order and
// repeats the last one.
type dialSequence struct {
	mu      sync.Mutex
	results []dialResult
	calls   int
}

type dialResult struct {
	session Session
	err     error
}

func (d *dialSequence) dial(context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := min(d.calls, len(d.results)-1)
	d.calls++
	r := d.results[idx]
	return r.session, r.err
}

func (d *dialSequence) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type nackCall struct {
	tag     uint64
	requeue bool
}

type fakeAcker struct {
	mu    sync.Mutex
	acks  []uint64
	nacks []nackCall
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, nackCall{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcker) snapshot() ([]uint64, []nackCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acks...), append([]nackCall(nil), a.nacks...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
