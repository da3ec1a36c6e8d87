// Package authz decides whether the service's signing key is entitled to move
// a given on-chain token: it owns the token outright, holds a token-specific
// approval, or holds a blanket operator delegation from the current owner.
package authz

import (
	"context"

	"landledger/internal/chain"
	id "landledger/pkg/domain"
)

// Reason explains an authorization result.
type Reason string

const (
	ReasonOwnsDirectly        Reason = "owns_directly"
	ReasonApprovedSingleToken Reason = "approved_single_token"
	ReasonApprovedForAll      Reason = "approved_for_all"
	ReasonNotApproved         Reason = "not_approved"
)

// Result is the ephemeral outcome of an authorization check. It is never
// persisted. When CanTransfer is false, SignerAddress and OnChainOwner tell
// the caller who must grant approval to whom.
type Result struct {
	CanTransfer   bool
	Reason        Reason
	SignerAddress id.WalletAddress
	OnChainOwner  id.WalletAddress
}

// Resolver answers authorization checks against live chain state. Reads are
// never cached: a stale owner must not authorize a transfer.
type Resolver struct {
	chain chain.Client
}

func NewResolver(chainClient chain.Client) *Resolver {
	return &Resolver{chain: chainClient}
}

// Resolve determines whether the service may move tokenID. expectedOwner is
// the custodial wallet the database believes holds the token; it is carried
// for the caller's diagnostics but the decision rests on the chain's answer.
// Any failed read propagates as a retryable chain error, never as a false
// "not approved".
func (r *Resolver) Resolve(ctx context.Context, tokenID id.TokenID, expectedOwner id.WalletAddress) (Result, error) {
	signer := r.chain.SignerAddress()

	owner, err := r.chain.CurrentOwner(ctx, tokenID)
	if err != nil {
		return Result{}, err
	}

	result := Result{SignerAddress: signer, OnChainOwner: owner}

	if owner.Equal(signer) {
		result.CanTransfer = true
		result.Reason = ReasonOwnsDirectly
		return result, nil
	}

	approved, err := r.chain.Approved(ctx, tokenID)
	if err != nil {
		return Result{}, err
	}
	if !approved.IsZero() && approved.Equal(signer) {
		result.CanTransfer = true
		result.Reason = ReasonApprovedSingleToken
		return result, nil
	}

	forAll, err := r.chain.IsApprovedForAll(ctx, owner, signer)
	if err != nil {
		return Result{}, err
	}
	if forAll {
		result.CanTransfer = true
		result.Reason = ReasonApprovedForAll
		return result, nil
	}

	result.Reason = ReasonNotApproved
	return result, nil
}
