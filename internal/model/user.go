// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限ロールを表す。
// ロール間に暗黙の上下関係は持たせない。
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleDeveloper Role = "DEVELOPER"
	RoleUser      Role = "USER"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleUser:
		return true
	default:
		return false
	}
}

// User は認証対象のユーザーを表す。
// 通常運用では削除せず、IsActiveで論理的に無効化する。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はサーバー側で保持するログインセッションを表す。
// トークン本体は保存せず、SHA-256ハッシュのみを保持する。
type Session struct {
	TokenHash    string
	UserID       string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	IPAddress    string
	UserAgent    string
}

// SessionInfo は検証済みセッションの要約。
// アクセスガードを通過したリクエストのコンテキストに格納される。
type SessionInfo struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	ExpiresAt    time.Time `json:"expiresAt"`
	LastActivity time.Time `json:"lastActivity"`
}
