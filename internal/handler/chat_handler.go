package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/fanzone/internal/hub"
	"github.com/hitoshi/fanzone/internal/middleware"
	"github.com/hitoshi/fanzone/internal/model"
)

// ChatHistoryService はチャット履歴の取得インターフェース。
type ChatHistoryService interface {
	Recent(ctx context.Context, limit int) ([]*model.ChatMessage, error)
}

// HubController はチャットハンドラーが使うHubの操作。
type HubController interface {
	Stats() hub.Stats
	Moderate(username string, action hub.ModerationAction) error
}

// ChatHandler はチャットのHTTPハンドラー。
type ChatHandler struct {
	history ChatHistoryService
	hub     HubController
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(history ChatHistoryService, h HubController) *ChatHandler {
	return &ChatHandler{history: history, hub: h}
}

type messagesResponse struct {
	Messages []*model.ChatMessage `json:"messages"`
}

// Messages は直近のメッセージを古い順に返す。
// GET /api/chat/messages?limit=50
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limitは整数で指定してください"))
			return
		}
		limit = n
	}

	msgs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs})
}

// Stats は視聴者数と累計メッセージ数を返す。
// GET /api/chat/stats
func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Stats())
}

// Moderate は参加者へのモデレーションを記録し、全接続へ配信する。
// POST /api/chat/moderate
func (h *ChatHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	var req hub.ModerationPayload
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.hub.Moderate(req.Username, req.Action)
	switch {
	case errors.Is(err, hub.ErrInvalidUsername):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("usernameは必須です"))
		return
	case errors.Is(err, hub.ErrInvalidAction):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("未知のactionです"))
		return
	case err != nil:
		handleServiceError(w, err)
		return
	}

	if info, ok := middleware.SessionFromContext(r.Context()); ok {
		slog.Info("moderation issued",
			slog.String("user_id", info.UserID),
			slog.String("target", req.Username),
			slog.String("action", string(req.Action)),
		)
	}
	writeJSON(w, http.StatusAccepted, req)
}
