package models

import (
	"time"

	id "landledger/pkg/domain"
)

// Status is the lifecycle state of a transfer request.
//
//	pending → processing → {completed, failed}
//	pending → cancelled
//
// processing and the three terminal states accept no further owner-initiated
// action; a failed transfer is retried by creating a new request, the old one
// stays failed for audit.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Kind records how the parties characterize the transfer. Informational only.
type Kind string

const (
	KindSale        Kind = "sale"
	KindGift        Kind = "gift"
	KindInheritance Kind = "inheritance"
)

// TransferRequest is the durable record of a two-phase ownership transfer.
// Created by the parcel's logical owner, mutated only through the transfer
// service's state machine, immutable once terminal.
type TransferRequest struct {
	ID       id.TransferID
	ParcelID id.ParcelID

	FromUserID id.UserID
	ToUserID   id.UserID
	FromWallet id.WalletAddress
	ToWallet   id.WalletAddress

	Price float64
	Kind  Kind

	Status Status
	TxHash string

	InitiatedAt time.Time
	CompletedAt *time.Time
}
