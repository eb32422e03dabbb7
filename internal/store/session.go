package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/qla/internal/wizard"
)

// DefaultSessionTTL is the idle lifetime of a wizard session.
const DefaultSessionTTL = 12 * time.Hour

// CreateSession stores a new session and returns its ID.
func (s *Store) CreateSession(st wizard.State, ttl time.Duration) (string, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = s.db.Exec(
		`INSERT INTO wizard_sessions (id, state, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(data), now, now, now.Add(ttl),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetSession returns the session state for id, or nil if not found/expired.
func (s *Store) GetSession(id string) (*wizard.State, error) {
	var (
		data      string
		expiresAt time.Time
	)
	err := s.db.QueryRow(
		`SELECT state, expires_at FROM wizard_sessions WHERE id = ?`, id,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().UTC().After(expiresAt) {
		_ = s.DeleteSession(id)
		return nil, nil
	}
	var st wizard.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &st, nil
}

// SaveSession overwrites the state of an existing session and extends its lifetime.
func (s *Store) SaveSession(id string, st wizard.State, ttl time.Duration) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`UPDATE wizard_sessions SET state = ?, updated_at = ?, expires_at = ? WHERE id = ?`,
		string(data), now, now.Add(ttl), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(id string) error {
	_, err := s.db.Exec(`DELETE FROM wizard_sessions WHERE id = ?`, id)
	return err
}

// CleanupExpiredSessions removes all expired sessions and returns their IDs.
func (s *Store) CleanupExpiredSessions() ([]string, error) {
	rows, err := s.db.Query(`DELETE FROM wizard_sessions WHERE expires_at < ? RETURNING id`, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ValidSessionID reports whether id has the canonical form CreateSession
// issues. Only such IDs are safe to use as path elements.
func ValidSessionID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

// SessionCount returns the number of unexpired sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM wizard_sessions WHERE expires_at >= ?`, time.Now().UTC()).Scan(&count)
	return count, err
}
