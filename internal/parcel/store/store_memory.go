package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"landledger/internal/parcel/models"
	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
)

// InMemoryStore keeps parcels in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	parcels map[id.ParcelID]*models.Parcel
}

// NewMemory constructs an empty in-memory parcel store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{parcels: make(map[id.ParcelID]*models.Parcel)}
}

func (s *InMemoryStore) Create(_ context.Context, parcel *models.Parcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parcels[parcel.ID]; ok {
		return fmt.Errorf("parcel %s exists: %w", parcel.ID, sentinel.ErrConflict)
	}
	for _, existing := range s.parcels {
		if existing.PropertyID == parcel.PropertyID {
			return fmt.Errorf("property id %s taken: %w", parcel.PropertyID, sentinel.ErrConflict)
		}
	}
	s.parcels[parcel.ID] = clone(parcel)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, parcelID id.ParcelID) (*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parcel, ok := s.parcels[parcelID]
	if !ok {
		return nil, fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
	}
	return clone(parcel), nil
}

func (s *InMemoryStore) GetByPropertyID(_ context.Context, propertyID id.PropertyID) (*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, parcel := range s.parcels {
		if parcel.PropertyID == propertyID {
			return clone(parcel), nil
		}
	}
	return nil, fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) ListByOwner(_ context.Context, ownerID id.UserID) ([]*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Parcel
	for _, parcel := range s.parcels {
		if parcel.OwnerID == ownerID {
			out = append(out, clone(parcel))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListEligibleForRegistration(_ context.Context) ([]*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Parcel
	for _, parcel := range s.parcels {
		if parcel.Status == models.StatusVerified && !parcel.IsRegistered {
			out = append(out, clone(parcel))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListRegistered(_ context.Context) ([]*models.Parcel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Parcel
	for _, parcel := range s.parcels {
		if parcel.IsRegistered {
			out = append(out, clone(parcel))
		}
	}
	return out, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, parcelID id.ParcelID, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parcel, ok := s.parcels[parcelID]
	if !ok {
		return fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
	}
	parcel.Status = status
	parcel.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) MarkRegistered(_ context.Context, parcelID id.ParcelID, facts models.RegistrationFacts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parcel, ok := s.parcels[parcelID]
	if !ok {
		return fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
	}
	if parcel.IsRegistered {
		return fmt.Errorf("parcel already registered: %w", sentinel.ErrInvalidState)
	}
	parcel.IsRegistered = true
	parcel.TokenID = facts.TokenID
	parcel.TxHash = facts.TxHash
	parcel.BlockNumber = facts.BlockNumber
	parcel.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) UpdateOwnership(_ context.Context, parcelID id.ParcelID, ownerID id.UserID, wallet id.WalletAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parcel, ok := s.parcels[parcelID]
	if !ok {
		return fmt.Errorf("parcel not found: %w", sentinel.ErrNotFound)
	}
	parcel.OwnerID = ownerID
	parcel.WalletAddress = wallet
	parcel.UpdatedAt = time.Now()
	return nil
}

func clone(p *models.Parcel) *models.Parcel {
	c := *p
	return &c
}
