// Package session holds the bearer credential for the current user and
// persists it under one fixed key.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/logging"
)

// TokenKey is the single durable key the credential is stored under.
const TokenKey = "access_token"

// ErrEmptyToken is returned by Set when the credential is blank.
var ErrEmptyToken = errors.New("session: empty token")

// Store is the durable backing for a Session. Load returns an empty string
// and no error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// Session is the process-wide holder of the current credential. It holds at
// most one token; reads are served from memory.
type Session struct {
	mu     sync.RWMutex
	token  string
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// New builds a session backed by store. A nil store keeps the token in
// memory only.
func New(store Store, logger *zap.Logger) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{store: store, logger: logger.Named("session"), now: time.Now}
}

// Restore loads a previously persisted token into memory.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.store.Load(ctx)
	if err != nil {
		return logging.NewOperationError("session.restore", "", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Set replaces the current credential. The in-memory token is updated even
// when persisting it fails; the persistence error is returned.
func (s *Session) Set(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.store.Save(ctx, token); err != nil {
		return logging.NewOperationError("session.save", "", err)
	}
	return nil
}

// Token returns the current credential. A JWT whose exp claim has passed is
// treated as absent and cleared.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return "", false
	}
	if expiresAt, ok := expiry(token); ok && !s.now().Before(expiresAt) {
		s.logger.Info("credential expired", zap.Time("expires_at", expiresAt))
		if err := s.ClearIf(context.Background(), token); err != nil {
			s.logger.Warn("failed to clear expired credential", zap.Error(err))
		}
		return "", false
	}
	return token, true
}

// ExpiresAt reports the exp claim of the current credential, when it is a
// JWT carrying one.
func (s *Session) ExpiresAt() (time.Time, bool) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()
	if token == "" {
		return time.Time{}, false
	}
	return expiry(token)
}

// Clear forgets the credential. Clearing an empty session is a no-op apart
// from the durable delete.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := s.store.Delete(ctx); err != nil {
		return logging.NewOperationError("session.clear", "", err)
	}
	return nil
}

// ClearIf clears the session only if it still holds token, so a concurrent
// login is not undone.
func (s *Session) ClearIf(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return nil
	}
	s.token = ""
	s.mu.Unlock()
	if err := s.store.Delete(ctx); err != nil {
		return logging.NewOperationError("session.clear", "", err)
	}
	return nil
}

func expiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
