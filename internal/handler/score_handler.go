package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/fanzone/internal/model"
)

// ScoreServiceInterface はスコアハンドラーが必要とするサービスインターフェース。
type ScoreServiceInterface interface {
	Current(ctx context.Context) (*model.Score, error)
	Update(ctx context.Context, score model.Score) (*model.Score, error)
	Reset(ctx context.Context) (*model.Score, error)
}

// ScoreHandler はライブスコアのHTTPハンドラー。
type ScoreHandler struct {
	service ScoreServiceInterface
}

// NewScoreHandler はScoreHandlerを生成する。
func NewScoreHandler(service ScoreServiceInterface) *ScoreHandler {
	return &ScoreHandler{service: service}
}

// Get は現在のスコアを返す。
// GET /api/score
func (h *ScoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, err := h.service.Current(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// Update はスコアを更新し、全接続へ配信する。
// PUT /api/score
func (h *ScoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req model.Score
	if !decodeJSON(w, r, &req) {
		return
	}

	sc, err := h.service.Update(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// Reset はスコアを初期化し、全接続へ配信する。
// POST /api/score/reset
func (h *ScoreHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sc, err := h.service.Reset(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}
