package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost は1回の検証がおよそ100ms前後になるコスト値。
const DefaultBcryptCost = 12

// ErrEmptyPassword は空のパスワードをハッシュ化しようとした場合に返される。
var ErrEmptyPassword = errors.New("password cannot be empty")

// PasswordHasher はパスワードの一方向ハッシュ化と照合を提供する。
type PasswordHasher interface {
	// Hash はソルト付きハッシュを生成する。
	Hash(password string) (string, error)
	// Verify はパスワードがハッシュと一致するかを返す。
	// ハッシュが壊れている場合もエラーにせずfalseを返す。
	Verify(password, hash string) bool
}

// BcryptHasher はbcryptによるPasswordHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costが範囲外の場合はDefaultBcryptCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はbcryptハッシュを生成する。
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify はパスワードとハッシュを照合する。
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var _ PasswordHasher = (*BcryptHasher)(nil)
