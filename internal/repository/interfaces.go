// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/fanzone/internal/model"
)

// DBTX は各リポジトリが必要とするSQL実行のインターフェース。
// *sql.DB と *sql.Tx の両方を受け付ける。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// UpdateLastLogin は最終ログイン日時を更新する。
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdateRoleAndActive はロールと有効フラグを更新する。
	// 対象ユーザーが存在しない場合はErrNotFoundを返す。
	UpdateRoleAndActive(ctx context.Context, id string, role model.Role, active bool) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// 期限の判定はすべて呼び出し側が渡す時刻で行い、DBの時計には依存しない。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByTokenHash はトークンハッシュでセッションを取得する。
	// 期限切れでも返す。見つからない場合はnilを返す。
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)

	// Touch はlast_activityを更新する。既存値より過去の時刻では更新しない。
	Touch(ctx context.Context, tokenHash string, at time.Time) error

	// Extend はexpires_atを延長し、last_activityを更新する。
	Extend(ctx context.Context, tokenHash string, expiresAt, at time.Time) error

	// DeleteByTokenHash は指定セッションを削除する。存在しなくてもエラーにしない。
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired はnow時点で期限切れのセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MessageRepository はチャットメッセージの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを保存する。
	Create(ctx context.Context, msg *model.ChatMessage) error

	// ListRecent は新しい順にlimit件取得し、古い順に並べて返す。
	ListRecent(ctx context.Context, limit int) ([]*model.ChatMessage, error)

	// Count は保存済みメッセージの総数を返す。
	Count(ctx context.Context) (int64, error)
}

// ScoreRepository はライブスコアの永続化インターフェース。
// スコアは常に1行のみ保持する。
type ScoreRepository interface {
	// Get は現在のスコアを取得する。
	Get(ctx context.Context) (*model.Score, error)

	// Save はスコアを上書き保存する。
	Save(ctx context.Context, score *model.Score) error

	// Reset は両チームの得点とピリオドを初期化し、初期化後のスコアを返す。
	Reset(ctx context.Context, at time.Time) (*model.Score, error)
}
