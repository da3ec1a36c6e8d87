package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "landledger/pkg/domain-errors"
)

// Entity identifiers are UUID-backed value types. Construct via the Parse
// functions at trust boundaries; direct casting bypasses validation.

type UserID uuid.UUID

type ParcelID uuid.UUID

type TransferID uuid.UUID

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id ParcelID) String() string   { return uuid.UUID(id).String() }
func (id TransferID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ParcelID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TransferID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func NewUserID() UserID         { return UserID(uuid.New()) }
func NewParcelID() ParcelID     { return ParcelID(uuid.New()) }
func NewTransferID() TransferID { return TransferID(uuid.New()) }

func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid user id")
	}
	return UserID(u), nil
}

func ParseParcelID(s string) (ParcelID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ParcelID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid parcel id")
	}
	return ParcelID(u), nil
}

func ParseTransferID(s string) (TransferID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TransferID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid transfer id")
	}
	return TransferID(u), nil
}

// WalletAddress is a 0x-prefixed EVM address. The zero value means "no wallet".
type WalletAddress string

func ParseWalletAddress(s string) (WalletAddress, error) {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "wallet address must be a 0x-prefixed 40-hex-digit string")
	}
	for _, r := range s[2:] {
		if !isHexDigit(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "wallet address must be a 0x-prefixed 40-hex-digit string")
		}
	}
	return WalletAddress(s), nil
}

func (w WalletAddress) String() string { return string(w) }
func (w WalletAddress) IsZero() bool   { return w == "" }

// Equal compares addresses case-insensitively; EVM addresses differ only in
// checksum casing.
func (w WalletAddress) Equal(other WalletAddress) bool {
	return strings.EqualFold(string(w), string(other))
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// TokenID is an on-chain token identifier. Zero means "not yet assigned";
// the registry mints ids starting at 1.
type TokenID int64

func (t TokenID) IsZero() bool { return t == 0 }

// PropertyID is the unique external property identifier for a parcel, assigned
// at submission and immutable afterwards.
type PropertyID string

func ParsePropertyID(s string) (PropertyID, error) {
	if s == "" || len(s) > 50 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "property id must be 1-50 characters")
	}
	return PropertyID(s), nil
}

func (p PropertyID) String() string { return string(p) }
