// Package audit records parcel and transfer lifecycle events. Events are
// written to a transactional outbox in the same database transaction as the
// state change they describe and published to Kafka by the outbox worker;
// Kafka is the downstream source of truth for the audit trail.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Audit actions, one per lifecycle moment.
const (
	ActionParcelSubmitted    = "parcel.submitted"
	ActionParcelVerified     = "parcel.verified"
	ActionParcelRejected     = "parcel.rejected"
	ActionParcelRegistered   = "parcel.registered"
	ActionTransferInitiated  = "transfer.initiated"
	ActionTransferCompleted  = "transfer.completed"
	ActionTransferCancelled  = "transfer.cancelled"
	ActionTransferFailed     = "transfer.failed"
	ActionRegistrationRepair = "registration.repaired"
)

// Event is one audit record.
type Event struct {
	ID         uuid.UUID
	Action     string
	ParcelID   string
	TransferID string
	ActorID    string
	TxHash     string
	Detail     string
	Timestamp  time.Time
}

// Store persists audit events. Implementations must join an enclosing SQL
// transaction when one is present in context so the event commits or rolls
// back with the state change it describes.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is a pending outbox row awaiting publication.
type OutboxEntry struct {
	ID      uuid.UUID
	Key     string
	Payload []byte
}

// OutboxStore is the worker-facing side of the outbox.
type OutboxStore interface {
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, entryID uuid.UUID) error
}
