package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/user"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Update(ctx context.Context, userID string, in user.UpdateInput) (*model.User, error)
}

// AdminHandler はユーザー管理のHTTPハンドラー。
type AdminHandler struct {
	service UserServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service UserServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type updateUserRequest struct {
	Role   *model.Role `json:"role"`
	Active *bool       `json:"active"`
}

type userResponse struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
	IsActive bool       `json:"isActive"`
}

// UpdateUser はロールまたは有効状態を変更する。対象ユーザーのセッションはすべて破棄される。
// PATCH /api/admin/users/{id}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), user.UpdateInput{
		Role:   req.Role,
		Active: req.Active,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:       u.ID,
		Email:    u.Email,
		Role:     u.Role,
		IsActive: u.IsActive,
	})
}
