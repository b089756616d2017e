package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sevenvoices/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository persists server-side session state keyed by an opaque token.
type SessionRepository interface {
	Create(ctx context.Context, s *model.Session) error
	// Get returns the session for token, or nil when none exists. Expiry is not checked here.
	Get(ctx context.Context, token string) (*model.Session, error)
	Touch(ctx context.Context, token string, data model.SessionData, expiresAt time.Time) error
	Delete(ctx context.Context, token string) error
}

type sessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepo{pool: pool}
}

func (r *sessionRepo) Create(ctx context.Context, s *model.Session) error {
	blob, err := json.Marshal(s.Data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	const q = `INSERT INTO sessions (token, sess, expires_at) VALUES ($1, $2, $3)`
	if _, err := r.pool.Exec(ctx, q, s.Token, blob, s.ExpiresAt); err != nil {
		return fmt.Errorf("insert session for user %s: %w", s.Data.UserID, err)
	}
	return nil
}

func (r *sessionRepo) Get(ctx context.Context, token string) (*model.Session, error) {
	const q = `SELECT token, sess, expires_at FROM sessions WHERE token = $1`
	var (
		s    model.Session
		blob []byte
	)
	if err := r.pool.QueryRow(ctx, q, token).Scan(&s.Token, &blob, &s.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	if err := json.Unmarshal(blob, &s.Data); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}
	return &s, nil
}

func (r *sessionRepo) Touch(ctx context.Context, token string, data model.SessionData, expiresAt time.Time) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session data: %w", err)
	}
	const q = `UPDATE sessions SET sess = $2, expires_at = $3 WHERE token = $1`
	if _, err := r.pool.Exec(ctx, q, token, blob, expiresAt); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Delete(ctx context.Context, token string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
