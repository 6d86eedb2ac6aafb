// Package app wires the domain logic to the adapters: the lifecycle event
// handlers consumed from the broker, the transcode-completion router, and
// the stream read/engagement service behind the HTTP surface.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/castline/castline/internal/domain"
	"github.com/castline/castline/internal/metrics"
	"github.com/castline/castline/internal/platform/retry"
)

// LifecycleService applies ingest lifecycle events to stream records. One
// event is one unit of work: the status transition and its audit record
// commit together or not at all.
type LifecycleService struct {
	streams domain.StreamRepository
	tx      domain.TxCoordinator
	cache   domain.LiveListCache
	clock   clockwork.Clock
}

func NewLifecycleService(streams domain.StreamRepository, tx domain.TxCoordinator, cache domain.LiveListCache, clock clockwork.Clock) *LifecycleService {
	return &LifecycleService{
		streams: streams,
		tx:      tx,
		cache:   cache,
		clock:   clock,
	}
}

// HandleConnected is the handler for the live_stream.connected queue.
func (s *LifecycleService) HandleConnected(ctx context.Context, body []byte) error {
	return s.handle(ctx, domain.EventConnected, body)
}

// HandleDisconnected is the handler for the live_stream.disconnected queue.
func (s *LifecycleService) HandleDisconnected(ctx context.Context, body []byte) error {
	return s.handle(ctx, domain.EventDisconnected, body)
}

func (s *LifecycleService) handle(ctx context.Context, ev domain.EventType, body []byte) error {
	var msg domain.LifecycleEvent
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if msg.LiveInputID == "" {
		return fmt.Errorf("%w: missing live_input_id", domain.ErrMalformedMessage)
	}

	stream, err := s.streams.FindByUID(ctx, msg.LiveInputID)
	switch {
	case errors.Is(err, domain.ErrStreamNotFound):
		metrics.StreamTransitionsTotal.WithLabelValues(string(ev), "not_found").Inc()
		slog.Warn("Event for unknown live input", "event", ev, "live_input_id", msg.LiveInputID)
		return &retry.PermanentError{Err: err}
	case errors.Is(err, domain.ErrStreamDeleted):
		metrics.StreamTransitionsTotal.WithLabelValues(string(ev), "deleted").Inc()
		slog.Warn("Event for deleted stream", "event", ev, "live_input_id", msg.LiveInputID)
		return &retry.PermanentError{Err: err}
	case err != nil:
		// Store unreachable: transient, the consumer retries.
		return fmt.Errorf("failed to look up stream %q: %w", msg.LiveInputID, err)
	}

	decision, err := domain.Transition(stream.Status, stream.IsDeleted, ev)
	if err != nil {
		metrics.StreamTransitionsTotal.WithLabelValues(string(ev), "deleted").Inc()
		return &retry.PermanentError{Err: err}
	}

	if decision.NoOp {
		metrics.StreamTransitionsTotal.WithLabelValues(string(ev), "noop").Inc()
		slog.Info("Duplicate lifecycle event, no-op", "event", ev, "stream_id", stream.ID, "status", stream.Status)
		return nil
	}

	now := s.clock.Now()
	err = domain.RunInUnit(ctx, s.tx, func(ctx context.Context) error {
		if err := s.streams.ApplyTransition(ctx, stream.ID, decision, now); err != nil {
			return err
		}
		return s.streams.AppendEvent(ctx, stream.ID, ev, now)
	})
	if errors.Is(err, domain.ErrStreamNotFound) {
		// Deleted between lookup and apply.
		metrics.StreamTransitionsTotal.WithLabelValues(string(ev), "not_found").Inc()
		return &retry.PermanentError{Err: err}
	}
	if err != nil {
		metrics.StreamTransitionsTotal.WithLabelValues(string(ev), "error").Inc()
		return fmt.Errorf("failed to apply %s transition for stream %s: %w", ev, stream.ID, err)
	}

	metrics.StreamTransitionsTotal.WithLabelValues(string(ev), "applied").Inc()
	slog.Info("Stream transition applied", "event", ev, "stream_id", stream.ID, "uid", stream.UID, "status", decision.Next)

	// Listing staleness is tolerable; a failed invalidation must not fail
	// the already-committed transition.
	if err := s.cache.Invalidate(ctx); err != nil {
		slog.Warn("Failed to invalidate live listing cache", "error", err)
	}

	return nil
}
