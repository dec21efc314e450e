package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/fanzone/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db DBTX
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db DBTX) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at, last_activity, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.TokenHash, session.UserID, session.CreatedAt, session.ExpiresAt,
		session.LastActivity, session.IPAddress, session.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByTokenHash はトークンハッシュでセッションを取得する。
// 期限切れの行も返し、期限判定は呼び出し側に委ねる。
func (r *PostgresSessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token_hash, user_id, created_at, expires_at, last_activity, ip_address, user_agent
		 FROM sessions
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(
		&session.TokenHash, &session.UserID, &session.CreatedAt, &session.ExpiresAt,
		&session.LastActivity, &session.IPAddress, &session.UserAgent,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	return session, nil
}

// Touch はlast_activityを単調非減少で更新する。
func (r *PostgresSessionRepo) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = GREATEST(last_activity, $2) WHERE token_hash = $1`,
		tokenHash, at,
	)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Extend はexpires_atを延長し、last_activityを単調非減少で更新する。
func (r *PostgresSessionRepo) Extend(ctx context.Context, tokenHash string, expiresAt, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET expires_at = $2, last_activity = GREATEST(last_activity, $3)
		 WHERE token_hash = $1`,
		tokenHash, expiresAt, at,
	)
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// DeleteByTokenHash は指定セッションを削除する。
func (r *PostgresSessionRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token_hash = $1`,
		tokenHash,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteExpired はnow時点で期限切れ（expires_at <= now）のセッションを一括削除する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
