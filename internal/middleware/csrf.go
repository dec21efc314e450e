package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fanzone/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はdouble-submitでトークンを送り返すヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	csrfCookieMaxAge = 24 * 60 * 60
	csrfTokenBytes   = 32
)

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// cookie はトークンを載せたCSRF Cookieを組み立てる。
func (c CSRFConfig) cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   csrfCookieMaxAge,
		HttpOnly: false,
		Secure:   c.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCSRFMiddleware はdouble-submit Cookie方式のCSRF対策ミドルウェアを返す。
// 安全なメソッドでは未発行ならトークンCookieを発行するだけで通過させる。
// 状態変更メソッドはセッションCookieで認証する場合に限り、Cookieとヘッダーの一致を要求する。
// Authorizationヘッダーのみのクライアントはブラウザが自動送信しないため検証しない。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				if !hasCookie(r, csrfCookieName) {
					if token, err := generateCSRFToken(); err != nil {
						slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
					} else {
						http.SetCookie(w, config.cookie(token))
					}
				}
				next.ServeHTTP(w, r)
				return
			}

			if !hasCookie(r, SessionCookieName) {
				next.ServeHTTP(w, r)
				return
			}

			if reason := checkDoubleSubmit(r); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFValidationFailedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkDoubleSubmit はCookieとヘッダーのトークンを比較し、不一致の理由を返す。
// 一致した場合は空文字を返す。
func checkDoubleSubmit(r *http.Request) string {
	c, err := r.Cookie(csrfCookieName)
	if err != nil || c.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(c.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	return ""
}

// NewCSRFTokenHandler はGET /api/csrf-tokenのハンドラーを返す。
// 既存のトークンCookieがあればその値を、なければ新規発行した値を返す。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
			writeCSRFToken(w, c.Value)
			return
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
			WriteInternalServerError(w)
			return
		}
		http.SetCookie(w, config.cookie(token))
		writeCSRFToken(w, token)
	})
}

func writeCSRFToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func hasCookie(r *http.Request, name string) bool {
	c, err := r.Cookie(name)
	return err == nil && c.Value != ""
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// generateCSRFToken は暗号的に安全なCSRFトークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
