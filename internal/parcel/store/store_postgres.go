package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"landledger/internal/parcel/models"
	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
	txcontext "landledger/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists parcels in PostgreSQL. Methods join an enclosing
// transaction when one is present in context.
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

const parcelColumns = `id, property_id, owner_id, wallet_address, title, location, area,
	property_type, latitude, longitude, document_hash, status, is_registered,
	token_id, tx_hash, block_number, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, parcel *models.Parcel) error {
	query := `
		INSERT INTO parcels (` + parcelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		uuid.UUID(parcel.ID), parcel.PropertyID.String(), uuid.UUID(parcel.OwnerID),
		nullString(parcel.WalletAddress.String()), parcel.Title, parcel.Location, parcel.Area,
		parcel.PropertyType, parcel.Latitude, parcel.Longitude,
		nullString(parcel.DocumentHash), string(parcel.Status), parcel.IsRegistered,
		nullToken(parcel.TokenID), nullString(parcel.TxHash), nullInt64(parcel.BlockNumber),
		parcel.CreatedAt, parcel.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return fmt.Errorf("property id %s taken: %w", parcel.PropertyID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert parcel: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+parcelColumns+` FROM parcels WHERE id = $1`, uuid.UUID(parcelID))
	return scanParcel(row)
}

func (s *PostgresStore) GetByPropertyID(ctx context.Context, propertyID id.PropertyID) (*models.Parcel, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+parcelColumns+` FROM parcels WHERE property_id = $1`, propertyID.String())
	return scanParcel(row)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Parcel, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+parcelColumns+` FROM parcels WHERE owner_id = $1 ORDER BY created_at`, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list parcels by owner: %w", err)
	}
	return scanParcels(rows)
}

func (s *PostgresStore) ListEligibleForRegistration(ctx context.Context) ([]*models.Parcel, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+parcelColumns+` FROM parcels
		 WHERE status = $1 AND NOT is_registered ORDER BY created_at`, string(models.StatusVerified))
	if err != nil {
		return nil, fmt.Errorf("list eligible parcels: %w", err)
	}
	return scanParcels(rows)
}

func (s *PostgresStore) ListRegistered(ctx context.Context) ([]*models.Parcel, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT `+parcelColumns+` FROM parcels WHERE is_registered ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("list registered parcels: %w", err)
	}
	return scanParcels(rows)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, parcelID id.ParcelID, status models.Status) error {
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE parcels SET status = $2, updated_at = now() WHERE id = $1`,
		uuid.UUID(parcelID), string(status))
	if err != nil {
		return fmt.Errorf("update parcel status: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) MarkRegistered(ctx context.Context, parcelID id.ParcelID, facts models.RegistrationFacts) error {
	// Flag and facts land in one statement, guarded so the flag never
	// downgrades and facts are never overwritten.
	result, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE parcels
		SET is_registered = TRUE, token_id = $2, tx_hash = $3, block_number = $4, updated_at = now()
		WHERE id = $1 AND NOT is_registered
	`, uuid.UUID(parcelID), int64(facts.TokenID), facts.TxHash, facts.BlockNumber)
	if err != nil {
		return fmt.Errorf("mark parcel registered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark parcel registered: %w", err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, parcelID); errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("parcel already registered: %w", sentinel.ErrInvalidState)
	}
	return nil
}

func (s *PostgresStore) UpdateOwnership(ctx context.Context, parcelID id.ParcelID, ownerID id.UserID, wallet id.WalletAddress) error {
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE parcels SET owner_id = $2, wallet_address = $3, updated_at = now() WHERE id = $1`,
		uuid.UUID(parcelID), uuid.UUID(ownerID), wallet.String())
	if err != nil {
		return fmt.Errorf("update parcel ownership: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParcel(row rowScanner) (*models.Parcel, error) {
	var (
		parcel       models.Parcel
		parcelUUID   uuid.UUID
		ownerUUID    uuid.UUID
		propertyID   string
		wallet       sql.NullString
		documentHash sql.NullString
		status       string
		tokenID      sql.NullInt64
		txHash       sql.NullString
		blockNumber  sql.NullInt64
	)
	err := row.Scan(
		&parcelUUID, &propertyID, &ownerUUID, &wallet, &parcel.Title, &parcel.Location,
		&parcel.Area, &parcel.PropertyType, &parcel.Latitude, &parcel.Longitude,
		&documentHash, &status, &parcel.IsRegistered, &tokenID, &txHash, &blockNumber,
		&parcel.CreatedAt, &parcel.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan parcel: %w", err)
	}
	parcel.ID = id.ParcelID(parcelUUID)
	parcel.OwnerID = id.UserID(ownerUUID)
	parcel.PropertyID = id.PropertyID(propertyID)
	parcel.WalletAddress = id.WalletAddress(wallet.String)
	parcel.DocumentHash = documentHash.String
	parcel.Status = models.Status(status)
	parcel.TokenID = id.TokenID(tokenID.Int64)
	parcel.TxHash = txHash.String
	parcel.BlockNumber = blockNumber.Int64
	return &parcel, nil
}

func scanParcels(rows *sql.Rows) ([]*models.Parcel, error) {
	defer rows.Close()
	var out []*models.Parcel
	for rows.Next() {
		parcel, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, parcel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parcels: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func nullToken(t id.TokenID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(t), Valid: !t.IsZero()}
}
