package session

import (
	"context"
	"fmt"
	"sync"

	"storefront-checkout/pkg/database"
)

type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error
	DeleteState(ctx context.Context, keys ...string) error
}

// Session is the authenticated identity of the app user. It is created by
// Load, mutated by Login/Logout and passed explicitly to the API client as
// its token source.
type Session struct {
	store StateStore

	mu     sync.RWMutex
	token  string
	userID string
}

// Load restores a persisted session; an empty session is not an error.
func Load(ctx context.Context, store StateStore) (*Session, error) {
	s := &Session{store: store}

	token, _, err := store.GetState(ctx, database.KeyToken)
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	userID, _, err := store.GetState(ctx, database.KeyUser)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	s.token = token
	s.userID = userID
	return s, nil
}

func (s *Session) Login(ctx context.Context, token, userID string) error {
	if err := s.store.SetState(ctx, database.KeyToken, token); err != nil {
		return err
	}
	if err := s.store.SetState(ctx, database.KeyUser, userID); err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.userID = userID
	s.mu.Unlock()
	return nil
}

// Logout forgets the identity and every key tied to it.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.userID = ""
	s.mu.Unlock()

	return s.store.DeleteState(ctx, database.KeyToken, database.KeyUser, database.KeyPendingCallback)
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Authenticated() bool {
	return s.Token() != ""
}
