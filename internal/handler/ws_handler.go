package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/fanzone/internal/chat"
	"github.com/hitoshi/fanzone/internal/hub"
	"github.com/hitoshi/fanzone/internal/model"
)

// WebSocketのerrorイベントで返すコード。
const (
	wsCodeInvalidRequest = "INVALID_REQUEST"
	wsCodeNotJoined      = "NOT_JOINED"
	wsCodeAlreadyJoined  = "ALREADY_JOINED"
	wsCodeSenderMismatch = "SENDER_MISMATCH"
	wsCodeMuted          = "MUTED"
	wsCodeBanned         = "BANNED"
	wsCodeEmptyMessage   = "EMPTY_MESSAGE"
	wsCodeTooLong        = "MESSAGE_TOO_LONG"
	wsCodeRateLimited    = "RATE_LIMITED"
	wsCodeInternal       = "INTERNAL_ERROR"
)

// messageTimeout は1件の投稿処理 (永続化を含む) の上限時間。
const messageTimeout = 5 * time.Second

// ChatSender はWebSocketから受けた投稿を処理するサービス。
type ChatSender interface {
	Send(ctx context.Context, connID string, payload hub.MessageSendPayload) (*model.ChatMessage, error)
}

// WSHandler はWebSocket接続を受け付け、受信イベントを振り分ける。
type WSHandler struct {
	hub      *hub.Hub
	chat     ChatSender
	cfg      hub.ClientConfig
	upgrader websocket.Upgrader
}

// NewWSHandler はWSHandlerを生成する。
// allowedOriginが空の場合はOriginを検査しない。
func NewWSHandler(h *hub.Hub, sender ChatSender, cfg hub.ClientConfig, allowedOrigin string) *WSHandler {
	return &WSHandler{
		hub:  h,
		chat: sender,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || strings.EqualFold(origin, allowedOrigin)
			},
		},
	}
}

// ServeHTTP は接続をアップグレードし、読み書きのループを開始する。
// GET /ws
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := hub.NewClient(h.hub, conn, h.cfg)
	if err := h.hub.Connect(client); err != nil {
		slog.Warn("websocket connect rejected", slog.String("error", err.Error()))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

// handleMessage は1件の受信フレームを処理する。ReadPumpのゴルーチンで呼ばれる。
func (h *WSHandler) handleMessage(c *hub.Client, raw []byte) {
	if !c.Allow() {
		h.hub.SendError(c.ID, wsCodeRateLimited, "too many messages")
		return
	}

	in, err := hub.DecodeInbound(raw)
	if err != nil {
		h.hub.SendError(c.ID, wsCodeInvalidRequest, "malformed event")
		return
	}

	switch in.Event {
	case hub.EventUserJoin:
		var username string
		if err := json.Unmarshal(in.Data, &username); err != nil {
			h.hub.SendError(c.ID, wsCodeInvalidRequest, "username must be a string")
			return
		}
		if err := h.hub.Join(c.ID, username); err != nil {
			h.sendError(c, err)
		}

	case hub.EventUserLeave:
		var username string
		if err := json.Unmarshal(in.Data, &username); err != nil {
			h.hub.SendError(c.ID, wsCodeInvalidRequest, "username must be a string")
			return
		}
		if err := h.hub.Leave(c.ID, username); err != nil {
			h.sendError(c, err)
		}

	case hub.EventMessageSend:
		var payload hub.MessageSendPayload
		if err := json.Unmarshal(in.Data, &payload); err != nil {
			h.hub.SendError(c.ID, wsCodeInvalidRequest, "invalid message payload")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
		defer cancel()
		if _, err := h.chat.Send(ctx, c.ID, payload); err != nil {
			h.sendError(c, err)
		}

	default:
		h.hub.SendError(c.ID, wsCodeInvalidRequest, "unknown event: "+in.Event)
	}
}

// sendError はエラーをWebSocketのerrorイベントに変換して送信元へ返す。
func (h *WSHandler) sendError(c *hub.Client, err error) {
	code, message := wsErrorFor(err)
	if code == wsCodeInternal {
		slog.Error("websocket event failed",
			slog.String("conn_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
	h.hub.SendError(c.ID, code, message)
}

func wsErrorFor(err error) (code, message string) {
	switch {
	case errors.Is(err, hub.ErrInvalidUsername):
		return wsCodeInvalidRequest, "username is required"
	case errors.Is(err, hub.ErrAlreadyJoined):
		return wsCodeAlreadyJoined, "already joined"
	case errors.Is(err, hub.ErrNotJoined), errors.Is(err, chat.ErrNotJoined):
		return wsCodeNotJoined, "join before sending messages"
	case errors.Is(err, chat.ErrSenderMismatch):
		return wsCodeSenderMismatch, "sender does not match joined username"
	case errors.Is(err, chat.ErrBanned):
		return wsCodeBanned, "you are banned from chat"
	case errors.Is(err, chat.ErrMuted):
		return wsCodeMuted, "you are muted"
	case errors.Is(err, chat.ErrEmptyContent):
		return wsCodeEmptyMessage, "message is empty"
	case errors.Is(err, chat.ErrContentTooLong):
		return wsCodeTooLong, "message is too long"
	default:
		return wsCodeInternal, "internal error"
	}
}
