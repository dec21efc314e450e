// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, chat, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationRequired  = "AUTHENTICATION_REQUIRED"
	ErrCodeNoSession               = "NO_SESSION"
	ErrCodeSessionExpired          = "SESSION_EXPIRED"
	ErrCodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeUserNotFound            = "USER_NOT_FOUND"
	ErrCodeInternal                = "INTERNAL_ERROR"
	ErrCodeRateLimited             = "RATE_LIMITED"
	ErrCodeCSRFValidationFailed    = "CSRF_VALIDATION_FAILED"
)

// NewAuthenticationRequiredError は認証情報が提示されなかった場合のエラーを生成する。
func NewAuthenticationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationRequired,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewNoSessionError はセッション確認時にトークンが無い場合のエラーを生成する。
func NewNoSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSession,
		Message:  "セッションがありません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionExpiredError はセッションが無効または期限切れの場合のエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInsufficientPermissionsError はロールが不足している場合のエラーを生成する。
func NewInsufficientPermissionsError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientPermissions,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗時のエラーを生成する。
// メールアドレスとパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewRateLimitedError はレート制限超過時のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterで示された時間が経過してから再度お試しください。",
	}
}

// NewCSRFValidationFailedError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFValidationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFValidationFailed,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
