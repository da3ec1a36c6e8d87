// Package identity is the seam to the excluded identity system. The core
// consumes a narrow directory contract: resolve a user by id or by a loose
// identifier, and read their wallet. Credential handling lives elsewhere.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	id "landledger/pkg/domain"
	"landledger/pkg/platform/sentinel"
)

// User is the directory's view of an account.
type User struct {
	ID       id.UserID
	Username string
	Email    string
	Wallet   id.WalletAddress
}

// Directory resolves users. Lookup accepts a username, email address, or
// wallet address, matching the transfer recipient contract.
type Directory interface {
	Get(ctx context.Context, userID id.UserID) (*User, error)
	Lookup(ctx context.Context, identifier string) (*User, error)
}

// InMemoryDirectory is a Directory for tests and development wiring.
type InMemoryDirectory struct {
	mu    sync.RWMutex
	users map[id.UserID]*User
}

func NewInMemoryDirectory(users ...*User) *InMemoryDirectory {
	d := &InMemoryDirectory{users: make(map[id.UserID]*User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *InMemoryDirectory) Add(user *User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *InMemoryDirectory) Get(_ context.Context, userID id.UserID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

func (d *InMemoryDirectory) Lookup(_ context.Context, identifier string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, user := range d.users {
		if user.Username == identifier ||
			strings.EqualFold(user.Email, identifier) ||
			(!user.Wallet.IsZero() && user.Wallet.Equal(id.WalletAddress(identifier))) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
}
