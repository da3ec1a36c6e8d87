package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"landledger/internal/transfer/models"
	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
)

// InMemoryStore keeps transfer requests in memory for tests/dev. The mutex
// gives the same serialization guarantees the partial unique index and
// conditional UPDATE give the PostgreSQL store.
type InMemoryStore struct {
	mu        sync.RWMutex
	transfers map[id.TransferID]*models.TransferRequest
}

// NewMemory constructs an empty in-memory transfer store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{transfers: make(map[id.TransferID]*models.TransferRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, transfer *models.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transfers {
		if existing.ParcelID == transfer.ParcelID && existing.Status == models.StatusPending {
			return fmt.Errorf("pending transfer exists for parcel %s: %w", transfer.ParcelID, sentinel.ErrConflict)
		}
	}
	s.transfers[transfer.ID] = clone(transfer)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, transferID id.TransferID) (*models.TransferRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	transfer, ok := s.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("transfer not found: %w", sentinel.ErrNotFound)
	}
	return clone(transfer), nil
}

func (s *InMemoryStore) ListForUser(_ context.Context, userID id.UserID) ([]*models.TransferRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TransferRequest
	for _, transfer := range s.transfers {
		if transfer.FromUserID == userID || transfer.ToUserID == userID {
			out = append(out, clone(transfer))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.Before(out[j].InitiatedAt) })
	return out, nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status models.Status) ([]*models.TransferRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TransferRequest
	for _, transfer := range s.transfers {
		if transfer.Status == status {
			out = append(out, clone(transfer))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InitiatedAt.Before(out[j].InitiatedAt) })
	return out, nil
}

func (s *InMemoryStore) FindPendingByParcel(_ context.Context, parcelID id.ParcelID) (*models.TransferRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, transfer := range s.transfers {
		if transfer.ParcelID == parcelID && transfer.Status == models.StatusPending {
			return clone(transfer), nil
		}
	}
	return nil, fmt.Errorf("no pending transfer: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) CompareAndSetStatus(_ context.Context, transferID id.TransferID, expected, next models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	transfer, ok := s.transfers[transferID]
	if !ok {
		return fmt.Errorf("transfer not found: %w", sentinel.ErrNotFound)
	}
	if transfer.Status != expected {
		return fmt.Errorf("status is %s, expected %s: %w", transfer.Status, expected, sentinel.ErrConflict)
	}
	transfer.Status = next
	return nil
}

func (s *InMemoryStore) Finalize(_ context.Context, transferID id.TransferID, status models.Status, txHash string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	transfer, ok := s.transfers[transferID]
	if !ok {
		return fmt.Errorf("transfer not found: %w", sentinel.ErrNotFound)
	}
	transfer.Status = status
	if txHash != "" {
		transfer.TxHash = txHash
	}
	at := completedAt
	transfer.CompletedAt = &at
	return nil
}

func clone(t *models.TransferRequest) *models.TransferRequest {
	c := *t
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
