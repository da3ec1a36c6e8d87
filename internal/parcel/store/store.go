// Package store persists Parcel records. All store methods follow the error
// contract: sentinel.ErrNotFound when the entity does not exist,
// sentinel.ErrConflict on uniqueness violations, sentinel.ErrInvalidState when
// a guarded mutation finds the record in the wrong state, and wrapped errors
// for infrastructure failures.
package store

import (
	"context"

	"landledger/internal/parcel/models"
	id "landledger/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, parcel *models.Parcel) error
	Get(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error)
	GetByPropertyID(ctx context.Context, propertyID id.PropertyID) (*models.Parcel, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Parcel, error)

	// ListEligibleForRegistration returns verified parcels not yet mirrored
	// on-chain.
	ListEligibleForRegistration(ctx context.Context) ([]*models.Parcel, error)

	// ListRegistered returns every parcel already mirrored on-chain, for
	// reconciliation against the ledger.
	ListRegistered(ctx context.Context) ([]*models.Parcel, error)

	UpdateStatus(ctx context.Context, parcelID id.ParcelID, status models.Status) error

	// MarkRegistered sets the registration flag together with all on-chain
	// facts in one durable write. Returns sentinel.ErrInvalidState when the
	// parcel is already registered: the flag never downgrades and facts are
	// never overwritten.
	MarkRegistered(ctx context.Context, parcelID id.ParcelID, facts models.RegistrationFacts) error

	// UpdateOwnership moves the logical owner and custodial wallet, the only
	// parcel mutation transfer completion performs.
	UpdateOwnership(ctx context.Context, parcelID id.ParcelID, ownerID id.UserID, wallet id.WalletAddress) error
}
