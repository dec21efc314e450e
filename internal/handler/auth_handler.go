// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/fanzone/internal/auth"
	"github.com/hitoshi/fanzone/internal/middleware"
	"github.com/hitoshi/fanzone/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ip, userAgent string) (*model.SessionInfo, string, error)
	ValidateSession(ctx context.Context, token string) (*model.SessionInfo, error)
	RefreshSession(ctx context.Context, token string) (*model.SessionInfo, error)
	DestroySession(ctx context.Context, token string) error
}

// AuthHandler はログインとセッション確認のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookies middleware.CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Session *model.SessionInfo `json:"session"`
	Token   string             `json:"token"`
}

type sessionResponse struct {
	Session *model.SessionInfo `json:"session"`
}

// Login はメールアドレスとパスワードで認証し、セッションCookieを設定する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("メールアドレスとパスワードは必須です"))
		return
	}

	info, token, err := h.service.Login(r.Context(), req.Email, req.Password, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
			return
		}
		slog.Error("login failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.SetSessionCookie(w, h.cookies, token)
	writeJSON(w, http.StatusOK, loginResponse{Session: info, Token: token})
}

// Session は現在のセッション情報を返す。
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoSessionError())
		return
	}

	info, err := h.service.ValidateSession(r.Context(), token)
	if err != nil {
		middleware.WriteSessionError(w, h.cookies, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Session: info})
}

// Refresh はセッションの有効期限を延長し、Cookieを再設定する。
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNoSessionError())
		return
	}

	info, err := h.service.RefreshSession(r.Context(), token)
	if err != nil {
		middleware.WriteSessionError(w, h.cookies, err)
		return
	}

	middleware.SetSessionCookie(w, h.cookies, token)
	writeJSON(w, http.StatusOK, sessionResponse{Session: info})
}

// Logout はセッションを破棄する。トークンの有無や有効性にかかわらずCookieを削除して204を返す。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if err := h.service.DestroySession(r.Context(), token); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to destroy session", slog.String("error", err.Error()))
		}
	}

	middleware.ClearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}
