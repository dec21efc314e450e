package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/fanzone/internal/auth"
	"github.com/hitoshi/fanzone/internal/model"
)

// --- モック定義 ---

type mockValidator struct {
	validateFn func(ctx context.Context, token string) (*model.SessionInfo, error)
	calls      int
}

func (m *mockValidator) ValidateSession(ctx context.Context, token string) (*model.SessionInfo, error) {
	m.calls++
	return m.validateFn(ctx, token)
}

func validatorFor(token string, role model.Role) *mockValidator {
	return &mockValidator{validateFn: func(ctx context.Context, got string) (*model.SessionInfo, error) {
		if got != token {
			return nil, auth.ErrSessionInvalid
		}
		return &model.SessionInfo{UserID: "user-1", Email: "admin@example.com", Role: role}, nil
	}}
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body.Code
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- テスト ---

func TestAccessGuard_ValidCookie_AttachesSession(t *testing.T) {
	guard := NewAccessGuard(validatorFor("tok", model.RoleAdmin), CookieConfig{})

	var got *model.SessionInfo
	handler := guard.Require(model.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got == nil || got.UserID != "user-1" {
		t.Errorf("session = %+v, want user-1", got)
	}
}

func TestAccessGuard_BearerHeader_Accepted(t *testing.T) {
	guard := NewAccessGuard(validatorFor("tok", model.RoleUser), CookieConfig{})
	handler := guard.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAccessGuard_NoToken_AuthenticationRequired(t *testing.T) {
	v := validatorFor("tok", model.RoleAdmin)
	guard := NewAccessGuard(v, CookieConfig{})
	handler := guard.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeAuthenticationRequired {
		t.Errorf("code = %q", code)
	}
	if v.calls != 0 {
		t.Error("validator should not be called without a token")
	}
}

func TestAccessGuard_ExpiredSession_ClearsCookie(t *testing.T) {
	v := &mockValidator{validateFn: func(ctx context.Context, token string) (*model.SessionInfo, error) {
		return nil, auth.ErrSessionExpired
	}}
	guard := NewAccessGuard(v, CookieConfig{Secure: true})
	handler := guard.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "old"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeSessionExpired {
		t.Errorf("code = %q, want SESSION_EXPIRED", code)
	}
	c := findCookie(w, SessionCookieName)
	if c == nil || c.MaxAge >= 0 || c.Value != "" || !c.Secure {
		t.Errorf("cookie = %+v, want cleared secure cookie", c)
	}
}

func TestAccessGuard_StoreFailure_Returns500(t *testing.T) {
	v := &mockValidator{validateFn: func(ctx context.Context, token string) (*model.SessionInfo, error) {
		return nil, fmt.Errorf("validate session: %w: %w", auth.ErrStoreUnavailable, errors.New("conn refused"))
	}}
	guard := NewAccessGuard(v, CookieConfig{})
	handler := guard.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if findCookie(w, SessionCookieName) != nil {
		t.Error("cookie must not be cleared on store failure")
	}
}

// TestAccessGuard_ExplicitRoleSet はロールの上下関係を持たず、許可リストだけで判定することを検証する。
func TestAccessGuard_ExplicitRoleSet(t *testing.T) {
	tests := []struct {
		name    string
		role    model.Role
		allowed []model.Role
		want    int
	}{
		{"DEVELOPER限定にDEVELOPER", model.RoleDeveloper, []model.Role{model.RoleDeveloper}, http.StatusOK},
		{"DEVELOPER限定にADMIN", model.RoleAdmin, []model.Role{model.RoleDeveloper}, http.StatusForbidden},
		{"ADMINとDEVELOPERにADMIN", model.RoleAdmin, []model.Role{model.RoleAdmin, model.RoleDeveloper}, http.StatusOK},
		{"ADMIN限定にUSER", model.RoleUser, []model.Role{model.RoleAdmin}, http.StatusForbidden},
		{"指定なしにUSER", model.RoleUser, nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard := NewAccessGuard(validatorFor("tok", tt.role), CookieConfig{})
			handler := guard.Require(tt.allowed...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			req := httptest.NewRequest(http.MethodPut, "/api/score", nil)
			req.Header.Set("Authorization", "Bearer tok")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusForbidden {
				if code := decodeErrorCode(t, w); code != model.ErrCodeInsufficientPermissions {
					t.Errorf("code = %q", code)
				}
			}
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"Cookie優先", "from-cookie", "Bearer from-header", "from-cookie"},
		{"Bearerヘッダー", "", "Bearer from-header", "from-header"},
		{"小文字のbearer", "", "bearer lower", "lower"},
		{"Basicは無視", "", "Basic abc", ""},
		{"なし", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if got := TokenFromRequest(req); got != tt.want {
				t.Errorf("TokenFromRequest = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSetSessionCookie_Attributes(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, CookieConfig{Secure: true, Domain: "example.com", MaxAge: 8 * time.Hour}, "tok")

	c := findCookie(w, SessionCookieName)
	if c == nil {
		t.Fatal("cookie not set")
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie = %+v", c)
	}
	if c.MaxAge != int((8 * time.Hour).Seconds()) {
		t.Errorf("MaxAge = %d, want 28800", c.MaxAge)
	}
}

func TestContextWithSession_RoundTrip(t *testing.T) {
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Error("empty context should not carry a session")
	}
	ctx := ContextWithSession(context.Background(), &model.SessionInfo{UserID: "u"})
	if info, ok := SessionFromContext(ctx); !ok || info.UserID != "u" {
		t.Errorf("SessionFromContext = %+v, %v", info, ok)
	}
}
