package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが誤っている場合に返される。
	// どちらが誤っているかは区別しない。
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionInvalid はセッションが存在しない、またはユーザーが無効化されている場合に返される。
	ErrSessionInvalid = errors.New("session invalid")

	// ErrSessionExpired はセッションの有効期限が切れている場合に返される。
	// errors.Is(err, ErrSessionInvalid) も真になる。
	ErrSessionExpired = fmt.Errorf("%w: expired", ErrSessionInvalid)

	// ErrStoreUnavailable は永続化層の障害を表す。認証失敗とは区別される。
	ErrStoreUnavailable = errors.New("store unavailable")
)

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
