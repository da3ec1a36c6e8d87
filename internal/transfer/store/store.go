// Package store persists TransferRequest records. Error contract as in the
// parcel store: sentinel.ErrNotFound, sentinel.ErrConflict, wrapped
// infrastructure errors.
package store

import (
	"context"
	"time"

	"landledger/internal/transfer/models"
	id "landledger/pkg/domain"
)

type Store interface {
	// Create persists a new pending request. Returns sentinel.ErrConflict
	// when a pending request already exists for the parcel; the at-most-one
	// invariant is enforced here, under the store's own serialization.
	Create(ctx context.Context, transfer *models.TransferRequest) error

	Get(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error)
	ListForUser(ctx context.Context, userID id.UserID) ([]*models.TransferRequest, error)

	// FindPendingByParcel returns the parcel's pending request, or
	// sentinel.ErrNotFound.
	FindPendingByParcel(ctx context.Context, parcelID id.ParcelID) (*models.TransferRequest, error)

	// ListByStatus returns every transfer currently in the given status,
	// oldest first. The reconciliation sweep uses it to surface rows left in
	// processing after a crash.
	ListByStatus(ctx context.Context, status models.Status) ([]*models.TransferRequest, error)

	// CompareAndSetStatus transitions status from expected to next only if the
	// stored status still equals expected, returning sentinel.ErrConflict on a
	// lost race. This is the application-level lock that keeps two concurrent
	// executions from both submitting on-chain transactions.
	CompareAndSetStatus(ctx context.Context, transferID id.TransferID, expected, next models.Status) error

	// Finalize records a terminal state with its on-chain facts.
	Finalize(ctx context.Context, transferID id.TransferID, status models.Status, txHash string, completedAt time.Time) error
}
