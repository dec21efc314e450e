package hub

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ClientConfig はWebSocket接続ごとの設定。
type ClientConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// 1接続あたりの受信イベントのレート制限
	RatePerSecond float64
	Burst         int
}

// PingInterval はPongWaitより短いping送信間隔を返す。
func (c ClientConfig) PingInterval() time.Duration {
	return c.PongWait * 9 / 10
}

// DefaultClientConfig はデフォルト値の設定を返す。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     256,
		RatePerSecond:  2,
		Burst:          5,
	}
}

// Client はHubに登録される1本のWebSocket接続。
// sendチャネルへの送信とクローズはHubのループだけが行う。
type Client struct {
	ID      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	cfg     ClientConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient は接続IDを採番してClientを生成する。
func NewClient(h *Hub, conn *websocket.Conn, cfg ClientConfig) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	id := uuid.NewString()
	return &Client{
		ID:      id,
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBuffer),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  h.logger.With(slog.String("conn_id", id)),
	}
}

// Allow は受信イベントがレート制限内かどうかを返す。
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

// ReadPump は接続からフレームを読み、handleへ渡す。
// 読み取りエラー (pongタイムアウトを含む) で終了し、Hubから切断する。
func (c *Client) ReadPump(handle func(*Client, []byte)) {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
		handle(c, message)
	}
}

// WritePump はsendチャネルの内容を接続へ書き出し、定期的にpingを送る。
// sendが閉じられるとクローズフレームを送って終了する。
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
