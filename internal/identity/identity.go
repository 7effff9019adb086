// Package identity resolves the signed-in account, if any. Sessions
// recorded while no identity is present stay local-only.
package identity

import (
	"errors"
	"fmt"

	"github.com/veibelle/skinmatch/internal/storage"
)

// ErrNoIdentity means no account is signed in; callers treat the user
// as a guest.
var ErrNoIdentity = errors.New("no identity configured")

// Identity is the signed-in account used for remote history sync.
type Identity struct {
	Email  string
	UserID string
}

// Provider yields the current identity or ErrNoIdentity.
type Provider interface {
	Current() (Identity, error)
}

// Persisted state keys.
const (
	keyEmail  = "identity.email"
	keyUserID = "identity.user_id"
)

// StateStore is the slice of persistence the provider needs.
type StateStore interface {
	SetState(key, value string) error
	GetState(key string) (string, error)
	RemoveState(key string) error
}

// StoreProvider reads the identity from the app-state store on every
// call, so sign-in and sign-out take effect without a restart.
type StoreProvider struct {
	store StateStore
}

// NewStoreProvider creates a StoreProvider over the given store.
func NewStoreProvider(store StateStore) *StoreProvider {
	return &StoreProvider{store: store}
}

// Current returns the stored identity. A missing email means guest.
func (p *StoreProvider) Current() (Identity, error) {
	email, err := p.store.GetState(keyEmail)
	if errors.Is(err, storage.ErrNotFound) {
		return Identity{}, ErrNoIdentity
	}
	if err != nil {
		return Identity{}, fmt.Errorf("loading identity: %w", err)
	}

	userID, err := p.store.GetState(keyUserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Identity{}, fmt.Errorf("loading identity: %w", err)
	}

	return Identity{Email: email, UserID: userID}, nil
}

// SignIn stores the identity.
func (p *StoreProvider) SignIn(id Identity) error {
	if id.Email == "" {
		return errors.New("email is required")
	}
	if err := p.store.SetState(keyEmail, id.Email); err != nil {
		return fmt.Errorf("storing identity: %w", err)
	}
	if err := p.store.SetState(keyUserID, id.UserID); err != nil {
		return fmt.Errorf("storing identity: %w", err)
	}
	return nil
}

// SignOut clears the stored identity. Local history is untouched.
func (p *StoreProvider) SignOut() error {
	if err := p.store.RemoveState(keyEmail); err != nil {
		return fmt.Errorf("clearing identity: %w", err)
	}
	if err := p.store.RemoveState(keyUserID); err != nil {
		return fmt.Errorf("clearing identity: %w", err)
	}
	return nil
}
