package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landledger/internal/transfer/models"
	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
	txcontext "landledger/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists transfer requests in PostgreSQL. The partial unique
// index on (parcel_id) WHERE status='pending' backs the at-most-one-pending
// invariant; CompareAndSetStatus relies on a conditional UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) dbtx {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const transferColumns = `id, parcel_id, from_user_id, to_user_id, from_wallet, to_wallet,
	price, kind, status, tx_hash, initiated_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, transfer *models.TransferRequest) error {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(transfer.ID), uuid.UUID(transfer.ParcelID),
		uuid.UUID(transfer.FromUserID), uuid.UUID(transfer.ToUserID),
		nullString(transfer.FromWallet.String()), transfer.ToWallet.String(),
		transfer.Price, string(transfer.Kind), string(transfer.Status),
		nullString(transfer.TxHash), transfer.InitiatedAt, transfer.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return fmt.Errorf("pending transfer exists for parcel %s: %w", transfer.ParcelID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, transferID id.TransferID) (*models.TransferRequest, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE id = $1`, uuid.UUID(transferID))
	return scanTransfer(row)
}

func (s *PostgresStore) ListForUser(ctx context.Context, userID id.UserID) ([]*models.TransferRequest, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		 WHERE from_user_id = $1 OR to_user_id = $1 ORDER BY initiated_at`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()
	var out []*models.TransferRequest
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.TransferRequest, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE status = $1 ORDER BY initiated_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list transfers by status: %w", err)
	}
	defer rows.Close()
	var out []*models.TransferRequest
	for rows.Next() {
		transfer, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindPendingByParcel(ctx context.Context, parcelID id.ParcelID) (*models.TransferRequest, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE parcel_id = $1 AND status = $2`,
		uuid.UUID(parcelID), string(models.StatusPending))
	return scanTransfer(row)
}

func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, transferID id.TransferID, expected, next models.Status) error {
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE transfers SET status = $3 WHERE id = $1 AND status = $2`,
		uuid.UUID(transferID), string(expected), string(next))
	if err != nil {
		return fmt.Errorf("compare-and-set transfer status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("compare-and-set transfer status: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, transferID); errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("transfer not found: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("status changed concurrently: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) Finalize(ctx context.Context, transferID id.TransferID, status models.Status, txHash string, completedAt time.Time) error {
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE transfers
		SET status = $2, tx_hash = COALESCE(NULLIF($3, ''), tx_hash), completed_at = $4
		WHERE id = $1
	`, uuid.UUID(transferID), string(status), txHash, completedAt)
	if err != nil {
		return fmt.Errorf("finalize transfer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize transfer: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("transfer not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*models.TransferRequest, error) {
	var (
		transfer     models.TransferRequest
		transferUUID uuid.UUID
		parcelUUID   uuid.UUID
		fromUUID     uuid.UUID
		toUUID       uuid.UUID
		fromWallet   sql.NullString
		toWallet     string
		kind         string
		status       string
		txHash       sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&transferUUID, &parcelUUID, &fromUUID, &toUUID, &fromWallet, &toWallet,
		&transfer.Price, &kind, &status, &txHash, &transfer.InitiatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transfer not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	transfer.ID = id.TransferID(transferUUID)
	transfer.ParcelID = id.ParcelID(parcelUUID)
	transfer.FromUserID = id.UserID(fromUUID)
	transfer.ToUserID = id.UserID(toUUID)
	transfer.FromWallet = id.WalletAddress(fromWallet.String)
	transfer.ToWallet = id.WalletAddress(toWallet)
	transfer.Kind = models.Kind(kind)
	transfer.Status = models.Status(status)
	transfer.TxHash = txHash.String
	if completedAt.Valid {
		at := completedAt.Time
		transfer.CompletedAt = &at
	}
	return &transfer, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
