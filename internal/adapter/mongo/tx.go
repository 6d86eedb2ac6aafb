package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/castline/castline/internal/domain"
	"github.com/castline/castline/internal/metrics"
)

// TxCoordinator opens units of work backed by MongoDB sessions. Multi-step
// writes performed with a unit's context commit or abort as one.
type TxCoordinator struct {
	client *mongo.Client
}

func NewTxCoordinator(client *mongo.Client) *TxCoordinator {
	return &TxCoordinator{client: client}
}

func (c *TxCoordinator) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	sess, err := c.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}

	return &unitOfWork{sess: sess}, nil
}

// unitOfWork is owned exclusively by the call chain that began it; it must
// not be shared across concurrent handlers.
type unitOfWork struct {
	sess     mongo.Session
	finished bool
}

func (u *unitOfWork) Context(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.sess)
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if err := u.sess.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.finished = true
	metrics.TxUnitsTotal.WithLabelValues("committed").Inc()
	return nil
}

func (u *unitOfWork) Abort(ctx context.Context) error {
	if u.finished {
		return nil
	}
	u.finished = true
	metrics.TxUnitsTotal.WithLabelValues("aborted").Inc()

	// A transaction that already failed server-side may have been aborted
	// for us; the driver reports that as an error we can ignore.
	if err := u.sess.AbortTransaction(ctx); err != nil {
		return fmt.Errorf("failed to abort transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) End(ctx context.Context) {
	u.sess.EndSession(ctx)
}
