package repository

import (
	"context"
	"fmt"
	"time"

	waitlisterrors "waitgate/internal/waitlists/errors"
	mongotx "waitgate/pkg/db/mongo"

	"go.mongodb.org/mongo-driver/mongo"
)

func (r *mongoWaitlistRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return translateConflict(r.txManager.ExecuteTransaction(ctx, fn))
}

func (r *mongoWaitlistUserRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return translateConflict(r.txManager.ExecuteTransaction(ctx, fn))
}

func translateConflict(err error) error {
	if err != nil && mongotx.IsWriteConflict(err) {
		return fmt.Errorf("%w: %v", waitlisterrors.ErrWriteConflict, err)
	}
	return err
}

// withTimeout bounds ctx by timeout unless ctx carries a transaction. A
// SessionContext cannot be wrapped without detaching it from its session.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}
