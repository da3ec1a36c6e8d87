package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"landledger/internal/transfer/models"
	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
)

func newTransfer(parcelID id.ParcelID) *models.TransferRequest {
	return &models.TransferRequest{
		ID:          id.NewTransferID(),
		ParcelID:    parcelID,
		FromUserID:  id.NewUserID(),
		ToUserID:    id.NewUserID(),
		ToWallet:    "0x00000000000000000000000000000000000000b2",
		Kind:        models.KindSale,
		Status:      models.StatusPending,
		InitiatedAt: time.Now().UTC(),
	}
}

func TestMemoryStoreOnePendingPerParcel(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	parcelID := id.NewParcelID()

	first := newTransfer(parcelID)
	require.NoError(t, store.Create(ctx, first))

	second := newTransfer(parcelID)
	err := store.Create(ctx, second)
	require.ErrorIs(t, err, sentinel.ErrConflict)

	// A transfer in any non-pending state frees the parcel.
	require.NoError(t, store.CompareAndSetStatus(ctx, first.ID, models.StatusPending, models.StatusCancelled))
	require.NoError(t, store.Create(ctx, second))
}

func TestMemoryStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	transfer := newTransfer(id.NewParcelID())
	require.NoError(t, store.Create(ctx, transfer))

	require.NoError(t, store.CompareAndSetStatus(ctx, transfer.ID, models.StatusPending, models.StatusProcessing))

	// Second claim loses.
	err := store.CompareAndSetStatus(ctx, transfer.ID, models.StatusPending, models.StatusProcessing)
	require.ErrorIs(t, err, sentinel.ErrConflict)

	err = store.CompareAndSetStatus(ctx, id.NewTransferID(), models.StatusPending, models.StatusProcessing)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStoreFinalize(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	transfer := newTransfer(id.NewParcelID())
	require.NoError(t, store.Create(ctx, transfer))

	completedAt := time.Now().UTC()
	require.NoError(t, store.Finalize(ctx, transfer.ID, models.StatusCompleted, "0xdone", completedAt))

	stored, err := store.Get(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, stored.Status)
	require.Equal(t, "0xdone", stored.TxHash)
	require.NotNil(t, stored.CompletedAt)
	require.True(t, completedAt.Equal(*stored.CompletedAt))
}

func TestMemoryStoreFindPendingByParcel(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	parcelID := id.NewParcelID()

	_, err := store.FindPendingByParcel(ctx, parcelID)
	require.ErrorIs(t, err, sentinel.ErrNotFound)

	transfer := newTransfer(parcelID)
	require.NoError(t, store.Create(ctx, transfer))

	found, err := store.FindPendingByParcel(ctx, parcelID)
	require.NoError(t, err)
	require.Equal(t, transfer.ID, found.ID)
}

func TestMemoryStoreListByStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	pending := newTransfer(id.NewParcelID())
	require.NoError(t, store.Create(ctx, pending))

	older := newTransfer(id.NewParcelID())
	older.Status = models.StatusProcessing
	require.NoError(t, store.Create(ctx, older))

	newer := newTransfer(id.NewParcelID())
	newer.Status = models.StatusProcessing
	newer.InitiatedAt = older.InitiatedAt.Add(time.Second)
	require.NoError(t, store.Create(ctx, newer))

	processing, err := store.ListByStatus(ctx, models.StatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 2)
	require.Equal(t, older.ID, processing[0].ID)
	require.Equal(t, newer.ID, processing[1].ID)
}

func TestMemoryStoreListForUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	a := newTransfer(id.NewParcelID())
	b := newTransfer(id.NewParcelID())
	b.ToUserID = a.FromUserID
	b.InitiatedAt = a.InitiatedAt.Add(time.Second)
	require.NoError(t, store.Create(ctx, a))
	require.NoError(t, store.Create(ctx, b))

	// Sender of a and recipient of b, ordered by initiation time.
	out, err := store.ListForUser(ctx, a.FromUserID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, a.ID, out[0].ID)
	require.Equal(t, b.ID, out[1].ID)
}
