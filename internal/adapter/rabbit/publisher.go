package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/castline/castline/internal/metrics"
)

// Publisher sends persistent messages onto durable queues. A circuit
// breaker makes publishes fail fast while the broker is down instead of
// blocking the upload pipeline behind connection timeouts.
type Publisher struct {
	url     string
	breaker *gobreaker.CircuitBreaker

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string) *Publisher {
	settings := gobreaker.Settings{
		Name: "rabbit-publisher",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Publisher circuit breaker state change", "from", from.String(), "to", to.String())
			metrics.PublisherBreakerState.Set(breakerStateValue(to))
		},
	}

	return &Publisher{
		url:     url,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Publish declares the durable queue and sends body as a persistent
// delivery, mirroring the producing side of the ingest pipeline.
func (p *Publisher) Publish(ctx context.Context, queue string, body []byte) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.publish(ctx, queue, body)
	})

	switch {
	case err == nil:
		metrics.PublishTotal.WithLabelValues(queue, "success").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.PublishTotal.WithLabelValues(queue, "breaker_open").Inc()
		return fmt.Errorf("publisher circuit open: %w", err)
	default:
		metrics.PublishTotal.WithLabelValues(queue, "error").Inc()
		return err
	}
}

func (p *Publisher) publish(ctx context.Context, queue string, body []byte) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}

	if err := declareQueue(ch, queue); err != nil {
		p.reset()
		return err
	}

	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("failed to publish to %q: %w", queue, err)
	}
	return nil
}

// channel returns the cached channel, dialing a fresh connection when
// needed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect publisher: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open publisher channel: %w", err)
	}

	p.conn = conn
	p.ch = ch
	return ch, nil
}

// reset drops the cached connection after a failure so the next publish
// redials.
func (p *Publisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn = nil
	p.ch = nil
}

// Close releases the publisher's connection.
func (p *Publisher) Close() {
	p.reset()
}
