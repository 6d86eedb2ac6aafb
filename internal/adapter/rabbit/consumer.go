// Package rabbit implements the durable-queue consumer and publisher on
// RabbitMQ. Queues are durable, consumption is explicit-acknowledge, and
// each queue gets its own channel so one queue's handler never blocks
// another's.
package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/castline/castline/internal/domain"
	"github.com/castline/castline/internal/metrics"
	"github.com/castline/castline/internal/platform/correlation"
	"github.com/castline/castline/internal/platform/retry"
)

// Handler processes one message body. Returning nil acknowledges the
// message. Wrapping the error in retry.PermanentError (or
// domain.ErrMalformedMessage) dead-letters it without retry; any other
// error is treated as transient and retried within the budget.
type Handler func(ctx context.Context, body []byte) error

// ReconnectPolicy bounds the consumer's reconnection backoff.
type ReconnectPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// attemptsHeader counts delivery attempts across republishes. AMQP nack
// does not track redelivery counts, so the transient-retry budget is
// enforced by republishing with this header incremented and acking the
// original.
const attemptsHeader = "x-attempts"

type Consumer struct {
	url            string
	clock          clockwork.Clock
	policy         ReconnectPolicy
	retryMax       int
	handlerTimeout time.Duration

	// dial is amqp.Dial in production; tests substitute a fake.
	dial func(url string) (*amqp.Connection, error)

	handlers map[string]Handler

	mu       sync.Mutex
	conn     *amqp.Connection
	channels []*amqp.Channel

	wg       sync.WaitGroup // per-queue delivery loops
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewConsumer(url string, clock clockwork.Clock, policy ReconnectPolicy, retryMax int, handlerTimeout time.Duration) *Consumer {
	return &Consumer{
		url:            url,
		clock:          clock,
		policy:         policy,
		retryMax:       retryMax,
		handlerTimeout: handlerTimeout,
		dial:           amqp.Dial,
		handlers:       make(map[string]Handler),
		stopped:        make(chan struct{}),
	}
}

// Register maps a queue name to its handler. All registrations must happen
// before Start; a queue without a handler is a configuration error, not a
// runtime one.
func (c *Consumer) Register(queue string, h Handler) error {
	if _, exists := c.handlers[queue]; exists {
		return fmt.Errorf("queue %q already registered", queue)
	}
	c.handlers[queue] = h
	return nil
}

// Start connects, declares the registered queues, and begins consuming.
// The initial connection failing is a startup error; afterwards the
// consumer owns reconnection until ctx is cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return errors.New("no queues registered")
	}

	closed, err := c.connect(ctx)
	if err != nil {
		return err
	}

	go c.supervise(ctx, closed)
	return nil
}

// connect dials the broker, declares queues and their dead-letter queues,
// and spawns one sequential delivery loop per queue.
func (c *Consumer) connect(ctx context.Context) (<-chan *amqp.Error, error) {
	conn, err := c.dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	channels := make([]*amqp.Channel, 0, len(c.handlers))
	for queue, handler := range c.handlers {
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to open channel for %q: %w", queue, err)
		}

		// Prefetch 1: one message is processed to completion before the
		// next is handed to this queue's handler.
		if err := ch.Qos(1, 0, false); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set qos for %q: %w", queue, err)
		}

		if err := declareQueue(ch, queue); err != nil {
			_ = conn.Close()
			return nil, err
		}

		tag := fmt.Sprintf("castline-%s-%s", queue, uuid.NewString()[:8])
		deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to consume %q: %w", queue, err)
		}

		channels = append(channels, ch)

		c.wg.Add(1)
		go c.deliveryLoop(ctx, queue, handler, ch, deliveries)
	}

	c.mu.Lock()
	c.conn = conn
	c.channels = channels
	c.mu.Unlock()

	metrics.ConsumerConnected.Set(1)
	slog.Info("Broker connected", "queues", len(c.handlers))

	return conn.NotifyClose(make(chan *amqp.Error, 1)), nil
}

func declareQueue(ch *amqp.Channel, queue string) error {
	// Rejected messages route to a per-queue dead-letter destination.
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue + ".dlq",
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}
	if _, err := ch.QueueDeclare(queue+".dlq", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue for %q: %w", queue, err)
	}
	return nil
}

// supervise watches for connection loss and reconnects, re-declaring queues
// and resuming consumption.
func (c *Consumer) supervise(ctx context.Context, closed <-chan *amqp.Error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopped:
			return
		case amqpErr := <-closed:
			metrics.ConsumerConnected.Set(0)
			slog.Warn("Broker connection lost, reconnecting", "error", amqpErr)
			c.wg.Wait()
		}

		next, err := c.reconnect(ctx)
		if err != nil {
			return
		}
		closed = next
	}
}

// reconnect redials until it succeeds or the consumer shuts down. The retry
// policy doubles the backoff with jitter, capped at the configured maximum.
func (c *Consumer) reconnect(ctx context.Context) (<-chan *amqp.Error, error) {
	// The retry waits watch this derived context so Stop interrupts them.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopped:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	p := retry.Policy{
		InitialBackoff: c.policy.InitialBackoff,
		MaxBackoff:     c.policy.MaxBackoff,
		Jitter:         true,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Error("Broker reconnect failed", "attempt", attempt, "error", err, "backoff", backoff)
		},
	}
	alwaysRetry := func(error) retry.Action { return retry.Retry }

	return retry.Do(waitCtx, c.clock, p, alwaysRetry, func() (<-chan *amqp.Error, error) {
		metrics.ConsumerReconnectsTotal.Inc()
		return c.connect(ctx)
	})
}

// deliveryLoop processes one queue sequentially until the deliveries
// channel closes (connection loss) or ctx is cancelled. The in-flight
// handler always runs to completion before the loop exits.
func (c *Consumer) deliveryLoop(ctx context.Context, queue string, handler Handler, ch *amqp.Channel, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopped:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			result := c.process(ctx, queue, handler, ch, &d)
			metrics.ConsumerMessagesTotal.WithLabelValues(queue, string(result)).Inc()
		}
	}
}

type processResult string

const (
	resultAcked        processResult = "acked"
	resultMalformed    processResult = "malformed"
	resultPermanent    processResult = "permanent"
	resultRequeued     processResult = "requeued"
	resultDeadLettered processResult = "dead_lettered"
)

// republisher is the slice of amqp.Channel the retry path needs; tests
// substitute a fake.
type republisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// process runs the handler for one delivery and settles it: ack on
// success, dead-letter on malformed or permanent failure, republish with
// an incremented attempt header on transient failure within budget.
func (c *Consumer) process(ctx context.Context, queue string, handler Handler, pub republisher, d *amqp.Delivery) processResult {
	ctx = correlation.WithID(ctx, correlation.NewID())
	start := c.clock.Now()

	hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
	err := handler(hctx, d.Body)
	cancel()

	metrics.ConsumerHandleDuration.WithLabelValues(queue).Observe(c.clock.Since(start).Seconds())

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			slog.Warn("Failed to ack message", "queue", queue, "error", ackErr)
		}
		return resultAcked

	case errors.Is(err, domain.ErrMalformedMessage):
		slog.Error("Dropping malformed message", "queue", queue, "error", err)
		c.deadLetter(queue, d)
		return resultMalformed

	case isPermanent(err):
		slog.Warn("Dropping permanently failed message", "queue", queue, "error", err)
		c.deadLetter(queue, d)
		return resultPermanent

	default:
		attempts := attemptCount(d.Headers)
		if attempts >= c.retryMax {
			slog.Error("Retry budget exhausted, dead-lettering", "queue", queue, "attempts", attempts, "error", err)
			c.deadLetter(queue, d)
			return resultDeadLettered
		}

		slog.Warn("Transient failure, requeueing", "queue", queue, "attempt", attempts, "error", err)
		if pubErr := c.republish(ctx, queue, pub, d, attempts+1); pubErr != nil {
			// Republish failed (broker likely gone); putting the original
			// back preserves at-least-once.
			slog.Error("Failed to republish, returning message to queue", "queue", queue, "error", pubErr)
			if nackErr := d.Nack(false, true); nackErr != nil {
				slog.Warn("Failed to nack message", "queue", queue, "error", nackErr)
			}
			return resultRequeued
		}
		if ackErr := d.Ack(false); ackErr != nil {
			slog.Warn("Failed to ack republished message", "queue", queue, "error", ackErr)
		}
		return resultRequeued
	}
}

func (c *Consumer) deadLetter(queue string, d *amqp.Delivery) {
	// The queue's dead-letter routing takes it from here.
	if err := d.Nack(false, false); err != nil {
		slog.Warn("Failed to nack message", "queue", queue, "error", err)
	}
	metrics.DeadLetteredTotal.WithLabelValues(queue).Inc()
}

func (c *Consumer) republish(ctx context.Context, queue string, pub republisher, d *amqp.Delivery, attempts int) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[attemptsHeader] = int32(attempts)

	return pub.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         d.Body,
	})
}

func isPermanent(err error) bool {
	var perm *retry.PermanentError
	return errors.As(err, &perm)
}

func attemptCount(headers amqp.Table) int {
	switch v := headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

// Stop drains the in-flight handlers and closes the channel and connection
// before returning. No acknowledgements are issued after it returns. Safe
// to call more than once.
func (c *Consumer) Stop(ctx context.Context) {
	c.stopOnce.Do(func() { close(c.stopped) })

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Timed out draining in-flight handlers")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.channels {
		_ = ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	metrics.ConsumerConnected.Set(0)
	slog.Info("Broker connection closed")
}
