package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"landledger/internal/parcel/models"
	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
)

func newParcel(propertyID id.PropertyID) *models.Parcel {
	return &models.Parcel{
		ID:            id.NewParcelID(),
		PropertyID:    propertyID,
		OwnerID:       id.NewUserID(),
		WalletAddress: "0x00000000000000000000000000000000000000a1",
		Title:         "Plot",
		Location:      "Somewhere",
		Area:          100,
		PropertyType:  "residential",
		Status:        models.StatusPending,
	}
}

func TestMemoryStoreUniquePropertyID(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Create(ctx, newParcel("PROP-1")))
	err := store.Create(ctx, newParcel("PROP-1"))
	require.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestMemoryStoreMarkRegisteredOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	parcel := newParcel("PROP-2")
	parcel.Status = models.StatusVerified
	require.NoError(t, store.Create(ctx, parcel))

	facts := models.RegistrationFacts{TokenID: 5, TxHash: "0xabc", BlockNumber: 42}
	require.NoError(t, store.MarkRegistered(ctx, parcel.ID, facts))

	stored, err := store.Get(ctx, parcel.ID)
	require.NoError(t, err)
	require.True(t, stored.IsRegistered)
	require.Equal(t, id.TokenID(5), stored.TokenID)
	require.Equal(t, "0xabc", stored.TxHash)
	require.EqualValues(t, 42, stored.BlockNumber)

	// Facts never overwrite.
	err = store.MarkRegistered(ctx, parcel.ID, models.RegistrationFacts{TokenID: 6})
	require.ErrorIs(t, err, sentinel.ErrInvalidState)

	stored, err = store.Get(ctx, parcel.ID)
	require.NoError(t, err)
	require.Equal(t, id.TokenID(5), stored.TokenID)
}

func TestMemoryStoreListEligibleForRegistration(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	verified := newParcel("PROP-3")
	verified.Status = models.StatusVerified
	require.NoError(t, store.Create(ctx, verified))

	pending := newParcel("PROP-4")
	require.NoError(t, store.Create(ctx, pending))

	registered := newParcel("PROP-5")
	registered.Status = models.StatusVerified
	require.NoError(t, store.Create(ctx, registered))
	require.NoError(t, store.MarkRegistered(ctx, registered.ID, models.RegistrationFacts{TokenID: 1, TxHash: "0x1", BlockNumber: 1}))

	eligible, err := store.ListEligibleForRegistration(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.Equal(t, verified.ID, eligible[0].ID)
}

func TestMemoryStoreListRegistered(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	plain := newParcel("PROP-6")
	plain.Status = models.StatusVerified
	require.NoError(t, store.Create(ctx, plain))

	registered := newParcel("PROP-7")
	registered.Status = models.StatusVerified
	require.NoError(t, store.Create(ctx, registered))
	require.NoError(t, store.MarkRegistered(ctx, registered.ID, models.RegistrationFacts{TokenID: 2, TxHash: "0x2", BlockNumber: 2}))

	out, err := store.ListRegistered(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, registered.ID, out[0].ID)
}

func TestMemoryStoreUpdateOwnership(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	parcel := newParcel("PROP-6")
	require.NoError(t, store.Create(ctx, parcel))

	newOwner := id.NewUserID()
	newWallet := id.WalletAddress("0x00000000000000000000000000000000000000b2")
	require.NoError(t, store.UpdateOwnership(ctx, parcel.ID, newOwner, newWallet))

	stored, err := store.Get(ctx, parcel.ID)
	require.NoError(t, err)
	require.Equal(t, newOwner, stored.OwnerID)
	require.Equal(t, newWallet, stored.WalletAddress)
}
