package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CredentialStore keeps the signed-in user's token and id. At most one set
// of credentials is stored.
type CredentialStore struct {
	db *DB
}

// NewCredentialStore creates a credential store using the given database.
func NewCredentialStore(db *DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// SaveCredentials replaces the stored credentials.
func (c *CredentialStore) SaveCredentials(token, userID string) error {
	_, err := c.db.sql.Exec(
		`INSERT INTO credentials (id, token, user_id, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   token = excluded.token,
		   user_id = excluded.user_id,
		   updated_at = excluded.updated_at`,
		token, userID, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the stored credentials, or empty strings when none
// are stored.
func (c *CredentialStore) LoadCredentials() (token, userID string, err error) {
	err = c.db.sql.QueryRow(`SELECT token, user_id FROM credentials WHERE id = 1`).Scan(&token, &userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("loading credentials: %w", err)
	}
	return token, userID, nil
}

// ClearCredentials removes the stored credentials.
func (c *CredentialStore) ClearCredentials() error {
	if _, err := c.db.sql.Exec(`DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}
