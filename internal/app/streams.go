package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/castline/castline/internal/domain"
)

// StreamService backs the HTTP surface: live listing with a cache in
// front, engagement (like/unlike), owner soft delete, and stats.
type StreamService struct {
	streams domain.StreamRepository
	tx      domain.TxCoordinator
	cache   domain.LiveListCache
	clock   clockwork.Clock
}

func NewStreamService(streams domain.StreamRepository, tx domain.TxCoordinator, cache domain.LiveListCache, clock clockwork.Clock) *StreamService {
	return &StreamService{
		streams: streams,
		tx:      tx,
		cache:   cache,
		clock:   clock,
	}
}

// ListLive returns one page of live streams visible to the requester.
// The cache key includes the requester so private-stream visibility never
// leaks across users.
func (s *StreamService) ListLive(ctx context.Context, filter domain.ListFilter, page domain.Page, requesterID string) (*domain.StreamPage, error) {
	page = page.Normalize()
	key := fmt.Sprintf("p%d:s%d:n%s:u%s:r%s", page.Number, page.Size, filter.Name, filter.UID, requesterID)

	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}

	result, err := s.streams.ListLive(ctx, filter, page, requesterID)
	if err != nil {
		return nil, err
	}

	s.cache.Set(ctx, key, result)
	return result, nil
}

// Like adds the user to the stream's liking set; liking twice has the same
// effect as liking once.
func (s *StreamService) Like(ctx context.Context, streamID, userID string) error {
	return s.streams.ToggleLike(ctx, streamID, userID, true)
}

// Unlike removes the user from the stream's liking set.
func (s *StreamService) Unlike(ctx context.Context, streamID, userID string) error {
	return s.streams.ToggleLike(ctx, streamID, userID, false)
}

// EditCategories applies a category set edit. The add and remove halves
// run as one unit so a partial edit never becomes visible.
func (s *StreamService) EditCategories(ctx context.Context, streamID string, added, removed []string) error {
	now := s.clock.Now()
	err := domain.RunInUnit(ctx, s.tx, func(ctx context.Context) error {
		return s.streams.EditCategories(ctx, streamID, added, removed, now)
	})
	if err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		slog.Warn("Failed to invalidate live listing cache", "error", err)
	}
	return nil
}

// Delete soft-deletes a stream and records the deletion in the audit
// trail, as one unit.
func (s *StreamService) Delete(ctx context.Context, streamID string) error {
	now := s.clock.Now()
	err := domain.RunInUnit(ctx, s.tx, func(ctx context.Context) error {
		if err := s.streams.SoftDelete(ctx, streamID, now); err != nil {
			return err
		}
		return s.streams.AppendEvent(ctx, streamID, domain.EventDeleted, now)
	})
	if err != nil {
		return err
	}

	if err := s.cache.Invalidate(ctx); err != nil {
		slog.Warn("Failed to invalidate live listing cache", "error", err)
	}
	return nil
}

// Stats returns the aggregate stream counters.
func (s *StreamService) Stats(ctx context.Context) (*domain.StreamStats, error) {
	return s.streams.Stats(ctx, s.clock.Now())
}
