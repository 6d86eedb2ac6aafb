package app

import (
	"context"
	"time"

	"github.com/castline/castline/internal/domain"
)

// --- Mock StreamRepository ---

type mockStreamRepo struct {
	findByUIDFn       func(ctx context.Context, uid string) (*domain.Stream, error)
	applyTransitionFn func(ctx context.Context, streamID string, d domain.Decision, now time.Time) error
	appendEventFn     func(ctx context.Context, streamID string, ev domain.EventType, at time.Time) error
	softDeleteFn      func(ctx context.Context, streamID string, now time.Time) error
	toggleLikeFn      func(ctx context.Context, streamID, userID string, like bool) error
	editCategoriesFn  func(ctx context.Context, streamID string, added, removed []string, now time.Time) error
	listLiveFn        func(ctx context.Context, filter domain.ListFilter, page domain.Page, requesterID string) (*domain.StreamPage, error)
	statsFn           func(ctx context.Context, now time.Time) (*domain.StreamStats, error)
}

func (m *mockStreamRepo) FindByUID(ctx context.Context, uid string) (*domain.Stream, error) {
	if m.findByUIDFn != nil {
		return m.findByUIDFn(ctx, uid)
	}
	return nil, domain.ErrStreamNotFound
}

func (m *mockStreamRepo) ApplyTransition(ctx context.Context, streamID string, d domain.Decision, now time.Time) error {
	if m.applyTransitionFn != nil {
		return m.applyTransitionFn(ctx, streamID, d, now)
	}
	return nil
}

func (m *mockStreamRepo) AppendEvent(ctx context.Context, streamID string, ev domain.EventType, at time.Time) error {
	if m.appendEventFn != nil {
		return m.appendEventFn(ctx, streamID, ev, at)
	}
	return nil
}

func (m *mockStreamRepo) Create(_ context.Context, _ *domain.Stream) error { return nil }

func (m *mockStreamRepo) SoftDelete(ctx context.Context, streamID string, now time.Time) error {
	if m.softDeleteFn != nil {
		return m.softDeleteFn(ctx, streamID, now)
	}
	return nil
}

func (m *mockStreamRepo) ToggleLike(ctx context.Context, streamID, userID string, like bool) error {
	if m.toggleLikeFn != nil {
		return m.toggleLikeFn(ctx, streamID, userID, like)
	}
	return nil
}

func (m *mockStreamRepo) EditCategories(ctx context.Context, streamID string, added, removed []string, now time.Time) error {
	if m.editCategoriesFn != nil {
		return m.editCategoriesFn(ctx, streamID, added, removed, now)
	}
	return nil
}

func (m *mockStreamRepo) ListLive(ctx context.Context, filter domain.ListFilter, page domain.Page, requesterID string) (*domain.StreamPage, error) {
	if m.listLiveFn != nil {
		return m.listLiveFn(ctx, filter, page, requesterID)
	}
	return &domain.StreamPage{}, nil
}

func (m *mockStreamRepo) Stats(ctx context.Context, now time.Time) (*domain.StreamStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, now)
	}
	return &domain.StreamStats{}, nil
}

// --- Mock TxCoordinator / UnitOfWork ---

type mockUnit struct {
	commitErr error

	commits int
	aborts  int
	ends    int
}

func (u *mockUnit) Context(ctx context.Context) context.Context { return ctx }

func (u *mockUnit) Commit(_ context.Context) error {
	u.commits++
	return u.commitErr
}

func (u *mockUnit) Abort(_ context.Context) error {
	u.aborts++
	return nil
}

func (u *mockUnit) End(_ context.Context) { u.ends++ }

type mockTx struct {
	unit     *mockUnit
	beginErr error
	begins   int
}

func (m *mockTx) Begin(_ context.Context) (domain.UnitOfWork, error) {
	m.begins++
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return m.unit, nil
}

// --- Mock LiveListCache ---

type mockCache struct {
	getFn func(ctx context.Context, key string) (*domain.StreamPage, bool)
	setFn func(ctx context.Context, key string, page *domain.StreamPage)

	invalidations int
	invalidateErr error
}

func (m *mockCache) Get(ctx context.Context, key string) (*domain.StreamPage, bool) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, false
}

func (m *mockCache) Set(ctx context.Context, key string, page *domain.StreamPage) {
	if m.setFn != nil {
		m.setFn(ctx, key, page)
	}
}

func (m *mockCache) Invalidate(_ context.Context) error {
	m.invalidations++
	return m.invalidateErr
}
