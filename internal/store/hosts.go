package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// HostSessionTTL bounds a host login. Older sessions no longer resolve to a
// user, whatever the cookie says.
const HostSessionTTL = 7 * 24 * time.Hour

type Role string

const (
	RoleAdmin Role = "admin"
	RoleHost  Role = "host"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, role Role) (User, error) {
	u := User{ID: newID(), Email: strings.ToLower(strings.TrimSpace(email)), PasswordHash: passwordHash, Role: role}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, string(u.Role), formatTime(s.now()))
	if isUniqueViolation(err) {
		return u, ErrConflict
	}
	return u, err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role FROM users WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&u.ID, &u.Email, &u.PasswordHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	u.Role = Role(role)
	return u, err
}

// CreateHostSession stores a login session under the caller-minted id.
func (s *Store) CreateHostSession(ctx context.Context, sessionID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO host_sessions (id, user_id, created_at) VALUES (?, ?, ?)`,
		sessionID, userID, formatTime(s.now()))
	return err
}

// UserBySession resolves a session younger than HostSessionTTL.
func (s *Store) UserBySession(ctx context.Context, sessionID string) (User, error) {
	var u User
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.password_hash, u.role
		FROM host_sessions hs
		JOIN users u ON u.id = hs.user_id
		WHERE hs.id = ? AND hs.created_at > ?
	`, sessionID, formatTime(s.now().Add(-HostSessionTTL))).Scan(&u.ID, &u.Email, &u.PasswordHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	u.Role = Role(role)
	return u, err
}

func (s *Store) DeleteHostSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM host_sessions WHERE id = ?`, sessionID)
	return err
}
