// Package chain is the core's only boundary to the external ledger. The
// registry contract itself is opaque; this package exposes the narrow set of
// reads and submissions the core needs, with explicit result types per call.
package chain

import (
	"context"

	id "landledger/pkg/domain"
)

// Registration is the payload submitted when mirroring a verified parcel
// on-chain. OwnerWallet is the logical owner's wallet, recorded on-chain for
// reference only: the service's own signing address becomes the custodial
// owner (backend-custody model), so later transfers can be executed without
// end users holding gas funds.
type Registration struct {
	PropertyID   id.PropertyID
	OwnerWallet  id.WalletAddress
	Location     string
	Area         float64
	PropertyType string
	DocumentHash string
	Latitude     float64
	Longitude    float64
}

// RegistrationResult carries the confirmed on-chain facts of a registration.
// All fields are set together or the submission failed.
type RegistrationResult struct {
	TxHash      string
	TokenID     id.TokenID
	BlockNumber int64
}

// ParcelRecord is the on-chain view of a registered parcel, read back during
// reconciliation.
type ParcelRecord struct {
	TokenID    id.TokenID
	PropertyID id.PropertyID
	Owner      id.WalletAddress
}

// Client issues calls against the external ledger. Implementations must block
// on submissions until the transaction is confirmed or the receipt timeout
// elapses, and classify the outcome via the chain error codes: unavailable and
// timeout are retryable (outcome unknown), rejected is terminal for the
// attempt.
type Client interface {
	// SignerAddress returns the service's own signing address, the custodial
	// owner under the backend-custody model.
	SignerAddress() id.WalletAddress

	// CurrentOwner returns the current on-chain owner of the token.
	CurrentOwner(ctx context.Context, tokenID id.TokenID) (id.WalletAddress, error)

	// Approved returns the address approved for this specific token, or the
	// zero address when none is set.
	Approved(ctx context.Context, tokenID id.TokenID) (id.WalletAddress, error)

	// IsApprovedForAll reports whether operator holds a blanket delegation
	// from owner.
	IsApprovedForAll(ctx context.Context, owner, operator id.WalletAddress) (bool, error)

	// SubmitRegistration mints the parcel's token with the service as
	// custodial owner and waits for confirmation.
	SubmitRegistration(ctx context.Context, reg Registration) (RegistrationResult, error)

	// SubmitTransfer moves the token from its current holder to the recipient
	// and waits for confirmation, returning the transaction hash.
	SubmitTransfer(ctx context.Context, tokenID id.TokenID, from, to id.WalletAddress, price float64) (string, error)

	// RegisteredParcel reads the on-chain record for a token id.
	RegisteredParcel(ctx context.Context, tokenID id.TokenID) (ParcelRecord, error)

	// TotalRegistered returns how many parcels the registry has minted.
	TotalRegistered(ctx context.Context) (int64, error)

	// IsReachable reports whether the ledger currently answers reads.
	IsReachable(ctx context.Context) bool
}
