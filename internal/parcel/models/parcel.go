package models

import (
	"time"

	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
)

// Status is the verification state of a parcel record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

var validStatuses = map[Status]bool{
	StatusPending:  true,
	StatusVerified: true,
	StatusRejected: true,
}

func (s Status) IsValid() bool { return validStatuses[s] }

// Parcel is a land record. It is created at submission (status=pending),
// mutated by verification and by transfer completion (owner and wallet fields
// only), and never deleted.
//
// Lifecycle invariant: TokenID is assigned exactly when IsRegistered is true;
// the registration facts (flag, token id, tx hash, block number) are written
// together or not at all.
type Parcel struct {
	ID         id.ParcelID
	PropertyID id.PropertyID

	// OwnerID is the logical owner recorded in the database. WalletAddress is
	// the custodial wallet last known to hold the token; under the
	// backend-custody model they routinely refer to different parties.
	OwnerID       id.UserID
	WalletAddress id.WalletAddress

	Title        string
	Location     string
	Area         float64
	PropertyType string
	Latitude     float64
	Longitude    float64
	DocumentHash string

	Status       Status
	IsRegistered bool
	TokenID      id.TokenID
	TxHash       string
	BlockNumber  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnChain reports whether the parcel has a minted token.
func (p *Parcel) OnChain() bool { return p.IsRegistered && !p.TokenID.IsZero() }

// RegistrationFacts are the confirmed on-chain facts written to a parcel when
// registration succeeds. The store applies them with the registration flag in
// a single write.
type RegistrationFacts struct {
	TokenID     id.TokenID
	TxHash      string
	BlockNumber int64
}

// Submission carries the caller-supplied fields of a new parcel.
type Submission struct {
	PropertyID   id.PropertyID
	Title        string
	Location     string
	Area         float64
	PropertyType string
	Latitude     float64
	Longitude    float64
	DocumentHash string
}

// Validate checks the caller-supplied fields.
func (s Submission) Validate() error {
	if s.PropertyID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "property id is required")
	}
	if s.Title == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	if s.Location == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "location is required")
	}
	if s.Area <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "area must be positive")
	}
	if s.PropertyType == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "property type is required")
	}
	return nil
}
