// Package service handles parcel intake: owners submit land records, an
// admin reviews them, and approved records are handed to the registration
// service for on-chain mirroring.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"landledger/internal/identity"
	"landledger/internal/parcel/models"
	"landledger/internal/parcel/store"
	id "landledger/pkg/domain"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/audit"
	"landledger/pkg/platform/sentinel"
	"landledger/pkg/requestcontext"
)

// Registrar mirrors a verified parcel on-chain. Satisfied by the
// registration service.
type Registrar interface {
	RegisterIfEligible(ctx context.Context, parcelID id.ParcelID) (*models.Parcel, error)
}

type Service struct {
	parcels   store.Store
	directory identity.Directory
	registrar Registrar
	audit     *audit.Service
	log       *log.Logger
}

func NewService(parcels store.Store, directory identity.Directory, registrar Registrar, auditor *audit.Service, logger *log.Logger) (*Service, error) {
	if parcels == nil || directory == nil || logger == nil {
		return nil, errors.New("parcel service: missing dependency")
	}
	return &Service{parcels: parcels, directory: directory, registrar: registrar, audit: auditor, log: logger}, nil
}

// Submit creates a pending parcel owned by the caller. The owner's wallet is
// captured at submission time; it is required later for registration but not
// here, so wallet-less users can still lodge records.
func (s *Service) Submit(ctx context.Context, callerID id.UserID, submission models.Submission) (*models.Parcel, error) {
	if err := submission.Validate(); err != nil {
		return nil, err
	}

	owner, err := s.directory.Get(ctx, callerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "submitting user not found")
		}
		return nil, fmt.Errorf("resolve owner: %w", err)
	}

	now := requestcontext.Now(ctx).UTC()
	parcel := &models.Parcel{
		ID:            id.NewParcelID(),
		PropertyID:    submission.PropertyID,
		OwnerID:       owner.ID,
		WalletAddress: owner.Wallet,
		Title:         submission.Title,
		Location:      submission.Location,
		Area:          submission.Area,
		PropertyType:  submission.PropertyType,
		Latitude:      submission.Latitude,
		Longitude:     submission.Longitude,
		DocumentHash:  submission.DocumentHash,
		Status:        models.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.parcels.Create(ctx, parcel); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "property id is already recorded")
		}
		return nil, fmt.Errorf("create parcel: %w", err)
	}

	s.audit.RecordAsync(ctx, audit.Event{
		Action:   audit.ActionParcelSubmitted,
		ParcelID: parcel.ID.String(),
		ActorID:  owner.ID.String(),
	})
	return parcel, nil
}

// Review records an admin verdict. Approval triggers on-chain registration;
// a registration failure downgrades to a warning because the verdict itself
// stands and the sweep retries registration later.
func (s *Service) Review(ctx context.Context, parcelID id.ParcelID, approve bool) (*models.Parcel, error) {
	if requestcontext.CallerRole(ctx) != requestcontext.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeNotAuthorized, "only admins review parcels")
	}

	parcel, err := s.parcels.Get(ctx, parcelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
		}
		return nil, fmt.Errorf("load parcel: %w", err)
	}
	if parcel.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("parcel is %s, only pending parcels can be reviewed", parcel.Status))
	}

	verdict := models.StatusRejected
	action := audit.ActionParcelRejected
	if approve {
		verdict = models.StatusVerified
		action = audit.ActionParcelVerified
	}

	if err := s.parcels.UpdateStatus(ctx, parcelID, verdict); err != nil {
		return nil, fmt.Errorf("record verdict: %w", err)
	}
	parcel.Status = verdict

	s.audit.RecordAsync(ctx, audit.Event{
		Action:   action,
		ParcelID: parcel.ID.String(),
		ActorID:  requestcontext.UserID(ctx).String(),
	})

	if approve && s.registrar != nil {
		registered, err := s.registrar.RegisterIfEligible(ctx, parcelID)
		if err != nil {
			s.log.Printf("parcel %s: verified but registration deferred: %v", parcelID, err)
			return parcel, nil
		}
		return registered, nil
	}
	return parcel, nil
}

// Get returns a parcel visible to the caller: its owner, or an admin.
func (s *Service) Get(ctx context.Context, callerID id.UserID, parcelID id.ParcelID) (*models.Parcel, error) {
	parcel, err := s.parcels.Get(ctx, parcelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "parcel not found")
		}
		return nil, fmt.Errorf("load parcel: %w", err)
	}
	if parcel.OwnerID != callerID && requestcontext.CallerRole(ctx) != requestcontext.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeNotAuthorized, "parcel is not visible to this user")
	}
	return parcel, nil
}

// ListOwned returns the caller's parcels.
func (s *Service) ListOwned(ctx context.Context, callerID id.UserID) ([]*models.Parcel, error) {
	parcels, err := s.parcels.ListByOwner(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	return parcels, nil
}
