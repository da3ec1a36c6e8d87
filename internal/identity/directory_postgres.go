package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
)

// PostgresDirectory reads the users table mirrored from the identity system.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Get(ctx context.Context, userID id.UserID) (*User, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, username, email, wallet_address
		FROM users WHERE id = $1`, userID.String())
	return scanUser(row)
}

func (d *PostgresDirectory) Lookup(ctx context.Context, identifier string) (*User, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, username, email, wallet_address
		FROM users
		WHERE username = $1
		   OR lower(email) = lower($1)
		   OR (wallet_address IS NOT NULL AND lower(wallet_address) = lower($1))`,
		identifier)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		user   User
		rawID  string
		wallet sql.NullString
	)
	if err := row.Scan(&rawID, &user.Username, &user.Email, &wallet); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	user.ID = userID
	user.Wallet = id.WalletAddress(wallet.String)
	return &user, nil
}
