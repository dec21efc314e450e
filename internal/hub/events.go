package hub

import (
	"encoding/json"
	"fmt"
)

// クライアントとの間でやり取りするイベント名。クライアント互換のため変更しないこと。
const (
	EventUserJoin         = "user:join"
	EventUserLeave        = "user:leave"
	EventMessageSend      = "message:send"
	EventMessageBroadcast = "message:broadcast"
	EventViewerCount      = "viewer-count"
	EventMessageCount     = "message-count"
	EventScoreUpdate      = "score:update"
	EventScoreReset       = "score:reset"
	EventUserModerated    = "user:moderated"
	EventError            = "error"
)

// Event はWebSocket上を流れる {"event", "data"} 形式のエンベロープ。
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InboundEvent はクライアントから受信したエンベロープ。Dataは種別ごとに後からデコードする。
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MessageSendPayload は message:send のペイロード。
type MessageSendPayload struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// ModerationPayload は user:moderated のペイロード。
type ModerationPayload struct {
	Username string           `json:"username"`
	Action   ModerationAction `json:"action"`
}

// ErrorPayload は要求元の接続だけに返すエラーイベントのペイロード。
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ModerationAction はモデレーション操作の種別。
type ModerationAction string

const (
	ActionMute   ModerationAction = "mute"
	ActionUnmute ModerationAction = "unmute"
	ActionBan    ModerationAction = "ban"
	ActionUnban  ModerationAction = "unban"
	ActionWarn   ModerationAction = "warn"
)

// Valid は既知の操作かどうかを返す。
func (a ModerationAction) Valid() bool {
	switch a {
	case ActionMute, ActionUnmute, ActionBan, ActionUnban, ActionWarn:
		return true
	}
	return false
}

// DecodeInbound はクライアントからのフレームをエンベロープとして解釈する。
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return InboundEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Event == "" {
		return InboundEvent{}, fmt.Errorf("decode event: missing event name")
	}
	return ev, nil
}

func encodeEvent(name string, data any) ([]byte, error) {
	b, err := json.Marshal(Event{Event: name, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return b, nil
}
