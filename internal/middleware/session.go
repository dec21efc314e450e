// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/fanzone/internal/auth"
	"github.com/hitoshi/fanzone/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッション情報を格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionValidator はセッション検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*model.SessionInfo, error)
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

// AccessGuard は保護された操作の前段でセッションとロールを検証する。
type AccessGuard struct {
	validator SessionValidator
	cookies   CookieConfig
}

// NewAccessGuard はAccessGuardを生成する。
func NewAccessGuard(validator SessionValidator, cookies CookieConfig) *AccessGuard {
	return &AccessGuard{validator: validator, cookies: cookies}
}

// Require は許可ロールを明示したミドルウェアを返す。
// ロールの上下関係は持たないため、ADMINにも許可する場合はADMINを列挙すること。
// rolesが空の場合は有効なセッションであればロールを問わない。
//
//   - トークンなし: 401 AUTHENTICATION_REQUIRED
//   - 無効または期限切れ: Cookieを削除して 401 SESSION_EXPIRED
//   - ロール不一致: 403 INSUFFICIENT_PERMISSIONS
//   - ストア障害: 500 INTERNAL_ERROR
func (g *AccessGuard) Require(roles ...model.Role) func(next http.Handler) http.Handler {
	allowed := slices.Clone(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationRequiredError())
				return
			}

			info, err := g.validator.ValidateSession(r.Context(), token)
			if err != nil {
				WriteSessionError(w, g.cookies, err)
				return
			}

			if len(allowed) > 0 && !slices.Contains(allowed, info.Role) {
				slog.Warn("access denied",
					slog.String("user_id", info.UserID),
					slog.String("role", string(info.Role)),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewInsufficientPermissionsError())
				return
			}

			annotateIdentity(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), info)))
		})
	}
}

// WriteSessionError はセッション検証エラーをレスポンスに変換する。
// 無効なセッションの場合はクライアントが再送し続けないようCookieを削除する。
func WriteSessionError(w http.ResponseWriter, cookies CookieConfig, err error) {
	if errors.Is(err, auth.ErrSessionInvalid) {
		ClearSessionCookie(w, cookies)
		WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}
	slog.Error("session validation failed", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// TokenFromRequest はCookie、次にAuthorization: Bearer ヘッダーからトークンを取り出す。
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// SetSessionCookie はセッショントークンをHttpOnly Cookieとして設定する。
func SetSessionCookie(w http.ResponseWriter, cookies CookieConfig, token string) {
	maxAge := cookies.MaxAge
	if maxAge <= 0 {
		maxAge = auth.DefaultSessionDuration
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   cookies.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, cookies CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cookies.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromContext はリクエストコンテキストからセッション情報を取得する。
// AccessGuardを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.SessionInfo, bool) {
	info, ok := ctx.Value(sessionContextKey).(*model.SessionInfo)
	return info, ok && info != nil
}

// ContextWithSession はコンテキストにセッション情報を注入する。
func ContextWithSession(ctx context.Context, info *model.SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey, info)
}
