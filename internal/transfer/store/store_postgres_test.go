package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"landledger/internal/transfer/models"
	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
)

func TestPostgresCreateTranslatesUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO transfers").
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: "transfers_one_pending_per_parcel"})

	store := NewPostgres(db)
	err = store.Create(context.Background(), newTransfer(id.NewParcelID()))
	require.ErrorIs(t, err, sentinel.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompareAndSetStatus(t *testing.T) {
	t.Run("wins when the row still matches", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		transferID := id.NewTransferID()
		mock.ExpectExec("UPDATE transfers SET status").
			WillReturnResult(sqlmock.NewResult(0, 1))

		store := NewPostgres(db)
		err = store.CompareAndSetStatus(context.Background(), transferID, models.StatusPending, models.StatusProcessing)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses when the status moved", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		transferID := id.NewTransferID()
		mock.ExpectExec("UPDATE transfers SET status").
			WillReturnResult(sqlmock.NewResult(0, 0))
		// The follow-up existence check finds the row.
		columns := []string{
			"id", "parcel_id", "from_user_id", "to_user_id", "from_wallet", "to_wallet",
			"price", "kind", "status", "tx_hash", "initiated_at", "completed_at",
		}
		mock.ExpectQuery("SELECT .+ FROM transfers WHERE id").
			WillReturnRows(sqlmock.NewRows(columns).AddRow(
				transferID.String(), id.NewParcelID().String(), id.NewUserID().String(), id.NewUserID().String(),
				nil, "0xb2", 1.0, "sale", "processing", nil, time.Now(), nil,
			))

		store := NewPostgres(db)
		err = store.CompareAndSetStatus(context.Background(), transferID, models.StatusPending, models.StatusProcessing)
		require.ErrorIs(t, err, sentinel.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("UPDATE transfers SET status").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT .+ FROM transfers WHERE id").
			WillReturnError(sql.ErrNoRows)

		store := NewPostgres(db)
		err = store.CompareAndSetStatus(context.Background(), id.NewTransferID(), models.StatusPending, models.StatusProcessing)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresFinalizeMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE transfers").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgres(db)
	err = store.Finalize(context.Background(), id.NewTransferID(), models.StatusCompleted, "0xdone", time.Now())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
