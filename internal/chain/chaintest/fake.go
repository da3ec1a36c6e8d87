// Package chaintest provides a scripted in-memory chain client for unit tests.
package chaintest

import (
	"context"
	"errors"
	"sync"

	"landledger/internal/chain"
	id "landledger/pkg/domain"
)

// Fake implements chain.Client with scriptable state and call counters.
// The zero value is usable; set fields before handing it to a component.
type Fake struct {
	mu sync.Mutex

	Signer         id.WalletAddress
	Owners         map[id.TokenID]id.WalletAddress
	Approvals      map[id.TokenID]id.WalletAddress
	OperatorGrants map[id.WalletAddress]map[id.WalletAddress]bool
	Parcels        map[id.TokenID]chain.ParcelRecord
	Total          int64
	Reachable      bool

	// ReadErr, when set, is returned by every read call.
	ReadErr error
	// RegisterFn and TransferFn, when set, override the default submission
	// behavior.
	RegisterFn func(reg chain.Registration) (chain.RegistrationResult, error)
	TransferFn func(tokenID id.TokenID, from, to id.WalletAddress, price float64) (string, error)

	RegistrationCalls int
	TransferCalls     int
}

// NewFake returns a reachable fake with the given signer address.
func NewFake(signer id.WalletAddress) *Fake {
	return &Fake{
		Signer:         signer,
		Owners:         make(map[id.TokenID]id.WalletAddress),
		Approvals:      make(map[id.TokenID]id.WalletAddress),
		OperatorGrants: make(map[id.WalletAddress]map[id.WalletAddress]bool),
		Parcels:        make(map[id.TokenID]chain.ParcelRecord),
		Reachable:      true,
	}
}

func (f *Fake) SignerAddress() id.WalletAddress { return f.Signer }

func (f *Fake) CurrentOwner(_ context.Context, tokenID id.TokenID) (id.WalletAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return "", f.ReadErr
	}
	return f.Owners[tokenID], nil
}

func (f *Fake) Approved(_ context.Context, tokenID id.TokenID) (id.WalletAddress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return "", f.ReadErr
	}
	return f.Approvals[tokenID], nil
}

func (f *Fake) IsApprovedForAll(_ context.Context, owner, operator id.WalletAddress) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return false, f.ReadErr
	}
	return f.OperatorGrants[owner][operator], nil
}

// GrantOperator records a blanket delegation from owner to operator.
func (f *Fake) GrantOperator(owner, operator id.WalletAddress) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OperatorGrants[owner] == nil {
		f.OperatorGrants[owner] = make(map[id.WalletAddress]bool)
	}
	f.OperatorGrants[owner][operator] = true
}

func (f *Fake) SubmitRegistration(_ context.Context, reg chain.Registration) (chain.RegistrationResult, error) {
	f.mu.Lock()
	f.RegistrationCalls++
	fn := f.RegisterFn
	f.mu.Unlock()

	if fn != nil {
		return fn(reg)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Total++
	tokenID := id.TokenID(f.Total)
	f.Owners[tokenID] = f.Signer
	f.Parcels[tokenID] = chain.ParcelRecord{TokenID: tokenID, PropertyID: reg.PropertyID, Owner: f.Signer}
	return chain.RegistrationResult{TxHash: "0xfake", TokenID: tokenID, BlockNumber: f.Total}, nil
}

func (f *Fake) SubmitTransfer(_ context.Context, tokenID id.TokenID, from, to id.WalletAddress, price float64) (string, error) {
	f.mu.Lock()
	f.TransferCalls++
	fn := f.TransferFn
	f.mu.Unlock()

	if fn != nil {
		return fn(tokenID, from, to, price)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Owners[tokenID] = to
	if record, ok := f.Parcels[tokenID]; ok {
		record.Owner = to
		f.Parcels[tokenID] = record
	}
	return "0xfaketransfer", nil
}

func (f *Fake) RegisteredParcel(_ context.Context, tokenID id.TokenID) (chain.ParcelRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return chain.ParcelRecord{}, f.ReadErr
	}
	record, ok := f.Parcels[tokenID]
	if !ok {
		return chain.ParcelRecord{}, chain.Unavailable(errors.New("unknown token"))
	}
	return record, nil
}

func (f *Fake) TotalRegistered(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadErr != nil {
		return 0, f.ReadErr
	}
	return f.Total, nil
}

func (f *Fake) IsReachable(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reachable
}
