// Package postgres implements the audit store on the outbox table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"landledger/pkg/platform/audit"
	txcontext "landledger/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conn returns the transaction from context when present so outbox rows
// commit atomically with the state change they describe.
func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

type payload struct {
	Action     string    `json:"action"`
	ParcelID   string    `json:"parcel_id,omitempty"`
	TransferID string    `json:"transfer_id,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	body, err := json.Marshal(payload{
		Action:     event.Action,
		ParcelID:   event.ParcelID,
		TransferID: event.TransferID,
		ActorID:    event.ActorID,
		TxHash:     event.TxHash,
		Detail:     event.Detail,
		Timestamp:  event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	aggregateType, aggregateID := aggregate(event)
	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, aggregateType, aggregateID, event.Action, body, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

func aggregate(event audit.Event) (string, string) {
	if event.TransferID != "" {
		return "transfer", event.TransferID
	}
	return "parcel", event.ParcelID
}

func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []audit.OutboxEntry
	for rows.Next() {
		var e audit.OutboxEntry
		if err := rows.Scan(&e.ID, &e.Key, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, entryID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET published_at = now() WHERE id = $1`, entryID)
	if err != nil {
		return fmt.Errorf("mark outbox row published: %w", err)
	}
	return nil
}
