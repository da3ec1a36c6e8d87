// Package registration mirrors verified parcels onto the on-chain registry
// and reconciles the database against chain state. Registration is one-way:
// the registered flag and its facts are written together, never overwritten,
// and never downgraded.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log"

	"landledger/internal/chain"
	"landledger/internal/parcel/models"
	parcelstore "landledger/internal/parcel/store"
	"landledger/internal/registration/metrics"
	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/audit"
	"landledger/pkg/platform/sentinel"
)

type Service struct {
	parcels parcelstore.Store
	chain   chain.Client
	audit   *audit.Service
	metrics *metrics.Metrics
	log     *log.Logger
}

func NewService(parcels parcelstore.Store, chainClient chain.Client, auditor *audit.Service, m *metrics.Metrics, logger *log.Logger) (*Service, error) {
	if parcels == nil || chainClient == nil || logger == nil {
		return nil, errors.New("registration service: missing dependency")
	}
	return &Service{parcels: parcels, chain: chainClient, audit: auditor, metrics: m, log: logger}, nil
}

// RegisterIfEligible mints the parcel's token and records the confirmed
// facts. Preconditions: verified, not yet registered, owner wallet present.
// The local record is only mutated after on-chain confirmation; a submission
// with unknown outcome leaves the record untouched, and the sweep repairs it
// if the transaction landed.
func (s *Service) RegisterIfEligible(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	parcel, err := s.register(ctx, parcelID)
	s.metrics.IncrementRegistration(outcomeLabel(err))
	return parcel, err
}

func (s *Service) register(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	parcel, err := s.parcels.Get(ctx, parcelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
		}
		return nil, fmt.Errorf("load parcel: %w", err)
	}

	if parcel.Status != models.StatusVerified {
		return nil, dErrors.New(dErrors.CodeNotVerified, "only verified parcels can be registered on-chain")
	}
	if parcel.IsRegistered {
		return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "parcel is already registered on-chain")
	}
	if parcel.WalletAddress.IsZero() {
		return nil, dErrors.New(dErrors.CodeMissingWallet, "parcel owner has no wallet address")
	}

	result, err := s.chain.SubmitRegistration(ctx, chain.Registration{
		PropertyID:   parcel.PropertyID,
		OwnerWallet:  parcel.WalletAddress,
		Location:     parcel.Location,
		Area:         parcel.Area,
		PropertyType: parcel.PropertyType,
		DocumentHash: parcel.DocumentHash,
		Latitude:     parcel.Latitude,
		Longitude:    parcel.Longitude,
	})
	if err != nil {
		return nil, err
	}

	facts := models.RegistrationFacts{
		TokenID:     result.TokenID,
		TxHash:      result.TxHash,
		BlockNumber: result.BlockNumber,
	}
	if err := s.parcels.MarkRegistered(ctx, parcel.ID, facts); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// Lost a race with the sweep or a concurrent registration; the
			// chain write stands, the record is already in the goal state.
			s.log.Printf("parcel %s: registered concurrently, tx %s is a duplicate mint", parcel.ID, result.TxHash)
			return s.parcels.Get(ctx, parcel.ID)
		}
		return nil, fmt.Errorf("record registration facts: %w", err)
	}

	parcel.IsRegistered = true
	parcel.TokenID = facts.TokenID
	parcel.TxHash = facts.TxHash
	parcel.BlockNumber = facts.BlockNumber

	s.audit.RecordAsync(ctx, audit.Event{
		Action:   audit.ActionParcelRegistered,
		ParcelID: parcel.ID.String(),
		TxHash:   result.TxHash,
		Detail:   fmt.Sprintf("token %d", result.TokenID),
	})

	return parcel, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(dErrors.CodeOf(err))
}
