package service

import (
	"context"
	"database/sql"
	"sync"

	txcontext "landledger/pkg/platform/tx"
)

// Atomic runs fn as one all-or-nothing unit. Transfer completion writes the
// transfer's terminal state, the parcel's new ownership, and the audit event
// through this boundary so a crash never leaves them disagreeing.
type Atomic interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type sqlAtomic struct {
	db *sql.DB
}

// NewSQLAtomic returns an Atomic backed by database transactions. Stores
// called inside fn join the transaction through the context.
func NewSQLAtomic(db *sql.DB) Atomic {
	return &sqlAtomic{db: db}
}

func (a *sqlAtomic) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, a.db, fn)
}

type memoryAtomic struct {
	mu sync.Mutex
}

// NewMemoryAtomic returns an Atomic for in-memory store wiring. It serializes
// units against each other but cannot undo partial writes; tests that need
// rollback semantics use the SQL-backed implementation.
func NewMemoryAtomic() Atomic {
	return &memoryAtomic{}
}

func (a *memoryAtomic) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(ctx)
}
