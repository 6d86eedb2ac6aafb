package domain

import (
	"context"
	"time"
)

// StreamRepository is the persistence port for stream records. Calls made
// with a context produced by UnitOfWork.Context join that unit's
// transaction.
type StreamRepository interface {
	// FindByUID looks a stream up by its ingest-platform live-input id.
	// Returns ErrStreamDeleted when the only match is soft-deleted and
	// ErrStreamNotFound when absent.
	FindByUID(ctx context.Context, uid string) (*Stream, error)

	// ApplyTransition performs the single atomic update for a lifecycle
	// decision: status, the relevant timestamp, and lastUpdated.
	ApplyTransition(ctx context.Context, streamID string, d Decision, now time.Time) error

	// AppendEvent records a lifecycle transition in the audit collection.
	AppendEvent(ctx context.Context, streamID string, ev EventType, at time.Time) error

	Create(ctx context.Context, s *Stream) error
	SoftDelete(ctx context.Context, streamID string, now time.Time) error
	ToggleLike(ctx context.Context, streamID, userID string, like bool) error
	EditCategories(ctx context.Context, streamID string, added, removed []string, now time.Time) error

	ListLive(ctx context.Context, filter ListFilter, page Page, requesterID string) (*StreamPage, error)
	Stats(ctx context.Context, now time.Time) (*StreamStats, error)
}

// UnitOfWork is one all-or-nothing write scope. Every write sequence that
// spans more than one store mutation runs under a unit: begin, perform the
// writes with Context, commit on success or abort on failure, and End on
// every exit path.
type UnitOfWork interface {
	// Context binds ctx to this unit so repository calls participate in it.
	// The returned context must not be shared across concurrent handlers.
	Context(ctx context.Context) context.Context

	Commit(ctx context.Context) error

	// Abort discards the unit's writes. Safe to call when nothing was
	// written, and after a failed Commit.
	Abort(ctx context.Context) error

	// End releases the underlying session regardless of outcome.
	End(ctx context.Context)
}

// TxCoordinator opens units of work against the underlying store.
type TxCoordinator interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// RunInUnit wraps fn in a unit of work: the writes fn performs with the
// passed context are committed together, or aborted together when fn or the
// commit fails. A failed commit means none of the unit applied; callers may
// retry the whole sequence from scratch.
func RunInUnit(ctx context.Context, tc TxCoordinator, fn func(ctx context.Context) error) error {
	uow, err := tc.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.End(ctx)

	if err := fn(uow.Context(ctx)); err != nil {
		_ = uow.Abort(ctx)
		return err
	}

	if err := uow.Commit(ctx); err != nil {
		_ = uow.Abort(ctx)
		return err
	}
	return nil
}

// EventPublisher sends messages onto the durable queues. The upload/ingest
// pipeline is the producing side of the lifecycle queues; the backend only
// publishes retries and dead letters plus pipeline notifications.
type EventPublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// VideoIngestor is the external collaborator that finalizes a transcoded
// video (moves the file, attaches it to the video record). The lifecycle
// subsystem only routes transcode-completion messages to it.
type VideoIngestor interface {
	IngestTranscoded(ctx context.Context, libraryID, bunnyID, videoFilePath string) error
}

// LiveListCache fronts the live-stream listing. Invalidate is called after
// every lifecycle transition so readers never see a stale page for long.
type LiveListCache interface {
	Get(ctx context.Context, key string) (*StreamPage, bool)
	Set(ctx context.Context, key string, page *StreamPage)
	Invalidate(ctx context.Context) error
}
