// Package auth holds the daemon's view of the signed-in user. Credential
// acquisition (login forms, token refresh) lives in frontends; this package
// only keeps the current bearer token, extracts identity claims from it, and
// broadcasts changes so the connection manager can gate the hub connection.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/pbaptista/rally/internal/bus"
)

// Snapshot is the current authentication state.
type Snapshot struct {
	Authenticated bool
	UserID        int64
	Token         string
	ExpiresAt     time.Time
}

// Source owns the credentials and publishes "auth.changed" on every
// transition.
type Source struct {
	mu     sync.RWMutex
	cur    Snapshot
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSource creates a logged-out source.
func NewSource(b *bus.Bus, logger *zap.Logger) *Source {
	return &Source{bus: b, logger: logger}
}

// SetToken installs a bearer token. The token is parsed without signature
// verification — the daemon is not the issuer, it only needs the subject and
// expiry claims. Expired or claim-less tokens are rejected.
func (s *Source) SetToken(token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return errors.New("token has no subject claim")
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return fmt.Errorf("subject %q is not a user id: %w", sub, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return errors.New("token has no expiry claim")
	}
	if exp.Before(time.Now()) {
		return errors.New("token is expired")
	}

	s.mu.Lock()
	s.cur = Snapshot{
		Authenticated: true,
		UserID:        userID,
		Token:         token,
		ExpiresAt:     exp.Time,
	}
	snap := s.cur
	s.mu.Unlock()

	s.logger.Info("credentials installed",
		zap.Int64("user_id", userID),
		zap.Time("expires_at", exp.Time))
	s.publish(snap)
	return nil
}

// Clear drops the credentials (logout). Idempotent.
func (s *Source) Clear() {
	s.mu.Lock()
	wasAuthed := s.cur.Authenticated
	s.cur = Snapshot{}
	s.mu.Unlock()

	if !wasAuthed {
		return
	}
	s.logger.Info("credentials cleared")
	s.publish(Snapshot{})
}

// Snapshot returns the current authentication state.
func (s *Source) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Token returns the current bearer token, empty when logged out. Used as
// the REST client's token source.
func (s *Source) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Token
}

// Watch reacts to "auth.expired" events (a 401 observed elsewhere) by
// clearing the credentials, which in turn publishes the logged-out
// "auth.changed" that stops the hub connection.
func (s *Source) Watch(done <-chan struct{}) {
	sub := s.bus.Subscribe("auth.expired", 8)
	go func() {
		defer sub.Cancel()
		for {
			select {
			case <-sub.C:
				s.logger.Warn("credentials rejected by server, logging out")
				s.Clear()
			case <-done:
				return
			}
		}
	}()
}

func (s *Source) publish(snap Snapshot) {
	s.bus.Publish(bus.Event{
		Kind:    "auth.changed",
		At:      time.Now(),
		Payload: snap,
	})
}
