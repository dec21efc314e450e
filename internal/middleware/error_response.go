package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/fanzone/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusForCode はエラーコードに対応するHTTPステータスコードを返す。
// 未知のコードは500として扱う。
func StatusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeAuthenticationRequired, model.ErrCodeNoSession,
		model.ErrCodeSessionExpired, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeInsufficientPermissions, model.ErrCodeCSRFValidationFailed:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 401にはBearerのWWW-Authenticateを付与し、エラー応答はキャッシュさせない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	if statusCode == http.StatusUnauthorized {
		h.Set("WWW-Authenticate", `Bearer realm="fanzone"`)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はエラーコードから導いたステータスでapiErrを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     model.ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
