// Package notify is the seam to the excluded notification system. Dispatch is
// fire-and-forget: a failed notification is logged and swallowed, never
// failing or rolling back the operation that triggered it.
package notify

import (
	"context"
	"log"

	"landledger/internal/identity"
	parcelmodels "landledger/internal/parcel/models"
	transfermodels "landledger/internal/transfer/models"
)

// EventKind names the transfer lifecycle moments that notify users.
type EventKind string

const (
	EventTransferInitiated EventKind = "initiated"
	EventTransferCompleted EventKind = "completed"
	EventTransferCancelled EventKind = "cancelled"
)

// Dispatcher delivers transfer lifecycle notifications.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind EventKind, transfer *transfermodels.TransferRequest, parcel *parcelmodels.Parcel, from, to *identity.User)
}

// LogDispatcher writes notifications to the process log. It stands in for the
// real delivery channel in development and tests.
type LogDispatcher struct {
	log *log.Logger
}

func NewLogDispatcher(logger *log.Logger) *LogDispatcher {
	return &LogDispatcher{log: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, kind EventKind, transfer *transfermodels.TransferRequest, parcel *parcelmodels.Parcel, from, to *identity.User) {
	d.log.Printf("notify %s: transfer %s parcel %s from %s to %s",
		kind, transfer.ID, parcel.PropertyID, from.Username, to.Username)
}
