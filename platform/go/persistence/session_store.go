package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
)

// SessionsTable lives in each tenant database for multi-tenant sessions and
// in the master database for legacy sessions.
const SessionsTable = "sessions"

// Session represents an authenticated session row.
type Session struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// SessionStore exposes persistence helpers for the sessions table.
type SessionStore struct {
	db DB
}

// NewSessionStore wraps a pool; works against the master or a tenant database.
func NewSessionStore(db DB) (*SessionStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &SessionStore{db: db}, nil
}

// CreateSession inserts a session row.
func (s *SessionStore) CreateSession(ctx context.Context, sess Session) error {
	if sess.SessionID == uuid.Nil || sess.UserID == uuid.Nil {
		return errors.New("session id and user id are required")
	}

	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (session_id, user_id, created_at, expires_at)
        VALUES ($1, $2, $3, $4)
    `, SessionsTable), sess.SessionID, sess.UserID, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetLiveSession fetches a non-expired, non-revoked session for the pair.
func (s *SessionStore) GetLiveSession(ctx context.Context, sessionID, userID uuid.UUID) (Session, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT session_id, user_id, created_at, expires_at, revoked_at
        FROM %s
        WHERE session_id = $1 AND user_id = $2
          AND expires_at > now()
          AND revoked_at IS NULL
    `, SessionsTable), sessionID, userID)

	var sess Session
	err := row.Scan(&sess.SessionID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, fmt.Errorf("%w: session", apperrors.ErrNotFound)
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	return sess, nil
}

// RevokeSession marks a session revoked; unknown sessions are a no-op.
func (s *SessionStore) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET revoked_at = now()
        WHERE session_id = $1 AND revoked_at IS NULL
    `, SessionsTable), sessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
