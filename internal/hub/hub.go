package hub

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/fanzone/internal/model"
)

var (
	// ErrHubClosed はイベントループ停止後の操作に対して返される。
	ErrHubClosed = errors.New("hub is closed")
	// ErrNotConnected は台帳に存在しない接続への操作に対して返される。
	ErrNotConnected = errors.New("connection is not registered")
	// ErrInvalidAction は未知のモデレーション操作に対して返される。
	ErrInvalidAction = errors.New("invalid moderation action")
)

// Metrics はHubが記録するメトリクスのインターフェース。
type Metrics interface {
	SetConnections(n int)
	RecordBroadcast(event string)
	RecordBroadcastDropped()
}

type nopMetrics struct{}

func (nopMetrics) SetConnections(int)      {}
func (nopMetrics) RecordBroadcast(string)  {}
func (nopMetrics) RecordBroadcastDropped() {}

// Config はHubの設定。
type Config struct {
	Logger  *slog.Logger
	Metrics Metrics
	// InitialMessageCount は起動時点の累計メッセージ数。永続化済みの件数から引き継ぐ場合に使う。
	InitialMessageCount int64
	Now                 func() time.Time
}

// Stats は集計値のスナップショット。
type Stats struct {
	Viewers      int   `json:"viewers"`
	Participants int   `json:"participants"`
	Messages     int64 `json:"messages"`
}

// Hub は接続台帳とカウンタを単一のゴルーチンで所有し、全接続へイベントを配信する。
// すべての変更はopsチャネル経由でRunのループに直列化される。
type Hub struct {
	ops  chan func()
	done chan struct{}

	// 以下はRunのゴルーチンからのみ触る
	clients      map[string]*Client
	participants *Registry
	viewers      int
	messages     int64

	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// New はHubを生成する。Runを呼ぶまでイベントは処理されない。
func New(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hub{
		ops:          make(chan func(), 256),
		done:         make(chan struct{}),
		clients:      make(map[string]*Client),
		participants: NewRegistry(),
		messages:     cfg.InitialMessageCount,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
}

// Run はctxがキャンセルされるまでイベントループを回す。
// 終了時には残っている全接続の送信チャネルを閉じる。
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("hub started")
	defer func() {
		for id, c := range h.clients {
			delete(h.clients, id)
			close(c.send)
		}
		h.viewers = 0
		h.metrics.SetConnections(0)
		close(h.done)
		h.logger.Info("hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.ops:
			op()
		}
	}
}

// Done はイベントループ終了時に閉じられるチャネルを返す。
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// enqueue は操作をループに渡す。ループ停止後は false を返す。
func (h *Hub) enqueue(op func()) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.ops <- op:
		return true
	case <-h.done:
		return false
	}
}

// call は操作をループに渡して完了まで待つ。
func (h *Hub) call(op func()) bool {
	finished := make(chan struct{})
	if !h.enqueue(func() {
		op()
		close(finished)
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-h.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

// Connect は新しい接続を登録する (onConnect)。
// 新しい接続には現在の集計値を送り、他の接続には更新後の視聴者数を配信する。
// 登録が完了するまで待つ。nilを返した接続の送信チャネルはHub停止時に必ず閉じられる。
func (h *Hub) Connect(c *Client) error {
	ok := h.call(func() {
		if _, exists := h.clients[c.ID]; exists {
			return
		}
		h.clients[c.ID] = c
		h.viewers++
		h.metrics.SetConnections(h.viewers)
		h.logger.Debug("client connected", slog.String("conn_id", c.ID), slog.Int("viewers", h.viewers))

		h.sendTo(c, EventViewerCount, h.viewers)
		h.sendTo(c, EventMessageCount, h.messages)
		h.broadcast(EventViewerCount, h.viewers, c.ID)
	})
	if !ok {
		return ErrHubClosed
	}
	return nil
}

// Disconnect は接続を台帳から外す (onDisconnect)。
// 同じ接続に対して何度呼ばれても処理は一度だけ行われる。
func (h *Hub) Disconnect(c *Client) {
	h.enqueue(func() {
		h.remove(c)
	})
}

// Join は接続をチャット参加状態にし、本人以外へ user:join を配信する。
func (h *Hub) Join(connID, username string) error {
	var err error
	ok := h.call(func() {
		if _, connected := h.clients[connID]; !connected {
			err = ErrNotConnected
			return
		}
		var p *Participant
		p, err = h.participants.Join(connID, username, h.now())
		if err != nil {
			return
		}
		h.logger.Info("participant joined", slog.String("conn_id", connID), slog.String("username", p.Username))
		h.broadcast(EventUserJoin, p.Username, connID)
	})
	if !ok {
		return ErrHubClosed
	}
	return err
}

// Leave は参加状態を解除し、全接続へ user:leave を配信する。接続自体は維持される。
func (h *Hub) Leave(connID, username string) error {
	var err error
	ok := h.call(func() {
		var p *Participant
		p, err = h.participants.Leave(connID, username)
		if err != nil {
			return
		}
		h.logger.Info("participant left", slog.String("conn_id", connID), slog.String("username", p.Username))
		h.broadcast(EventUserLeave, p.Username, "")
	})
	if !ok {
		return ErrHubClosed
	}
	return err
}

// PublishMessage は永続化済みのメッセージを送信者を含む全接続へ配信し、
// 累計メッセージ数を1増やして配信する。
func (h *Hub) PublishMessage(msg model.ChatMessage) error {
	ok := h.enqueue(func() {
		h.broadcast(EventMessageBroadcast, msg, "")
		h.messages++
		h.broadcast(EventMessageCount, h.messages, "")
	})
	if !ok {
		return ErrHubClosed
	}
	return nil
}

// PublishScoreUpdate はスコア更新を全接続へ配信する。
func (h *Hub) PublishScoreUpdate(score model.Score) error {
	return h.publish(EventScoreUpdate, score)
}

// PublishScoreReset はスコアリセットを全接続へ配信する。
func (h *Hub) PublishScoreReset(score model.Score) error {
	return h.publish(EventScoreReset, score)
}

func (h *Hub) publish(event string, data any) error {
	if !h.enqueue(func() { h.broadcast(event, data, "") }) {
		return ErrHubClosed
	}
	return nil
}

// Moderate はユーザー名に対するモデレーション状態を記録し、user:moderated を全接続へ配信する。
// 送信拒否の判定はメッセージ受付側が参加者の状態を見て行う。
func (h *Hub) Moderate(username string, action ModerationAction) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidUsername
	}
	if !action.Valid() {
		return ErrInvalidAction
	}
	ok := h.enqueue(func() {
		n := h.participants.Moderate(username, action)
		h.logger.Info("participant moderated",
			slog.String("username", username),
			slog.String("action", string(action)),
			slog.Int("connections", n),
		)
		h.broadcast(EventUserModerated, ModerationPayload{Username: username, Action: action}, "")
	})
	if !ok {
		return ErrHubClosed
	}
	return nil
}

// Participant は接続に紐づく参加者を返す。
func (h *Hub) Participant(connID string) (Participant, bool) {
	var (
		p     Participant
		found bool
	)
	h.call(func() {
		p, found = h.participants.Get(connID)
	})
	return p, found
}

// RecordMessage は参加者の送信数を1増やす。
func (h *Hub) RecordMessage(connID string) {
	h.enqueue(func() {
		h.participants.RecordMessage(connID)
	})
}

// SendError は指定した接続だけにエラーイベントを送る。
func (h *Hub) SendError(connID, code, message string) {
	h.enqueue(func() {
		c, ok := h.clients[connID]
		if !ok {
			return
		}
		h.sendTo(c, EventError, ErrorPayload{Code: code, Message: message})
	})
}

// Stats は現在の集計値を返す。ループ停止後はゼロ値を返す。
func (h *Hub) Stats() Stats {
	var s Stats
	h.call(func() {
		s = Stats{
			Viewers:      h.viewers,
			Participants: h.participants.Len(),
			Messages:     h.messages,
		}
	})
	return s
}

// remove は接続を取り除き、参加中なら user:leave を配信する。
func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	h.viewers--
	h.metrics.SetConnections(h.viewers)
	h.logger.Debug("client disconnected", slog.String("conn_id", c.ID), slog.Int("viewers", h.viewers))

	if p, joined := h.participants.Remove(c.ID); joined {
		h.broadcast(EventUserLeave, p.Username, "")
	}
	h.broadcast(EventViewerCount, h.viewers, "")
}

// broadcast はexcept以外の全接続へイベントを送る。
// 送信バッファが詰まった接続は配信対象から外し、他の接続への配信は継続する。
func (h *Hub) broadcast(event string, data any, except string) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	h.metrics.RecordBroadcast(event)

	var slow []*Client
	for id, c := range h.clients {
		if id == except {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.dropSlow(slow)
}

func (h *Hub) sendTo(c *Client, event string, data any) {
	payload, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	select {
	case c.send <- payload:
	default:
		h.dropSlow([]*Client{c})
	}
}

func (h *Hub) dropSlow(slow []*Client) {
	for _, c := range slow {
		if _, ok := h.clients[c.ID]; !ok {
			continue
		}
		h.metrics.RecordBroadcastDropped()
		h.logger.Warn("dropping slow client", slog.String("conn_id", c.ID))
		h.remove(c)
	}
}
