// Package usage records consumption of metered operations. Increments go
// through the store's atomic counter update, and the pipelines call them
// only after the external call and persistence have both succeeded, so a
// failed operation is never counted. A crash between persistence and
// increment undercounts by at most one; that tradeoff is deliberate and
// there is no reconciliation job.
package usage

import (
	"context"

	"github.com/google/uuid"

	"github.com/studywise/backend/internal/apperr"
	"github.com/studywise/backend/internal/quota"
	"github.com/studywise/backend/internal/store"
)

type Ledger struct {
	store store.Store
}

func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

// Increment bumps the counter for op by one and returns the new value.
func (l *Ledger) Increment(ctx context.Context, userID uuid.UUID, op quota.Op) (int, error) {
	var (
		n   int
		err error
	)
	switch op {
	case quota.OpDocument:
		n, err = l.store.IncrementDocumentsUsed(ctx, userID)
	case quota.OpMessage:
		n, err = l.store.IncrementMessagesUsed(ctx, userID)
	default:
		return 0, apperr.Newf(apperr.KindInternal, "unknown operation kind %q", op)
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.KindPersistence, "increment usage counter", err)
	}
	return n, nil
}
