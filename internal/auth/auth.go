// Package auth holds the signed-in user's credentials.
package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/soyeahso/parley/internal/logging"
)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrInvalidEmail     = errors.New("please enter a valid email")
	ErrPasswordRequired = errors.New("password is required")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CredentialStore persists credentials between runs.
type CredentialStore interface {
	SaveCredentials(token, userID string) error
	LoadCredentials() (token, userID string, err error)
	ClearCredentials() error
}

// Manager tracks the current token and user id. It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	token  string
	userID string
	store  CredentialStore
	log    *logging.Logger
}

// NewManager creates a signed-out manager. store may be nil to keep
// credentials in memory only.
func NewManager(store CredentialStore, log *logging.Logger) *Manager {
	return &Manager{store: store, log: log.Sub("auth")}
}

// Hydrate loads persisted credentials.
func (m *Manager) Hydrate() error {
	if m.store == nil {
		return nil
	}
	token, userID, err := m.store.LoadCredentials()
	if err != nil {
		return fmt.Errorf("hydrating credentials: %w", err)
	}
	m.mu.Lock()
	m.token, m.userID = token, userID
	m.mu.Unlock()
	return nil
}

// Login records a token and user id and persists them.
func (m *Manager) Login(token, userID string) error {
	if token == "" || userID == "" {
		return errors.New("token and user id are required")
	}
	m.mu.Lock()
	m.token, m.userID = token, userID
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveCredentials(token, userID); err != nil {
			return err
		}
	}
	m.log.Info().Str("user", userID).Msg("signed in")
	return nil
}

// Logout forgets the credentials.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.token, m.userID = "", ""
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.ClearCredentials(); err != nil {
			return err
		}
	}
	m.log.Info().Msg("signed out")
	return nil
}

// IsAuthenticated reports whether both a token and a user id are held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.userID != ""
}

// Credentials returns the current token and user id.
func (m *Manager) Credentials() (token, userID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.userID
}

// UserID returns the signed-in user's id.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// ValidateCredentials checks login input before it is sent.
func ValidateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return ErrEmailRequired
	case !emailPattern.MatchString(email):
		return ErrInvalidEmail
	case password == "":
		return ErrPasswordRequired
	}
	return nil
}
