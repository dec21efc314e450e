// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、ブロードキャストハブ、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordSessionCreated()
	RecordSessionsCleaned(count int64)
	SetConnections(n int)
	RecordBroadcast(event string)
	RecordBroadcastDropped()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	sessionsCreated  prometheus.Counter
	sessionsCleaned  prometheus.Counter
	connections      prometheus.Gauge
	broadcasts       *prometheus.CounterVec
	broadcastDropped prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanzone_login_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"result"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fanzone_sessions_created_total",
			Help: "発行したセッションの合計数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fanzone_sessions_cleaned_total",
			Help: "一括削除した期限切れセッションの合計数",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fanzone_ws_connections",
			Help: "現在接続中のWebSocket数",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanzone_broadcast_events_total",
			Help: "イベント種別ごとのブロードキャスト数",
		}, []string{"event"}),
		broadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fanzone_broadcast_dropped_total",
			Help: "送信バッファ溢れで配信できなかったイベント数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fanzone_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.logins,
		c.sessionsCreated,
		c.sessionsCleaned,
		c.connections,
		c.broadcasts,
		c.broadcastDropped,
		c.httpStatus,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordSessionCreated はセッション発行を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionsCleaned は一括削除したセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// SetConnections は接続数を設定する。
func (c *Collector) SetConnections(n int) {
	c.connections.Set(float64(n))
}

// RecordBroadcast はブロードキャストしたイベントを記録する。
func (c *Collector) RecordBroadcast(event string) {
	c.broadcasts.WithLabelValues(event).Inc()
}

// RecordBroadcastDropped は配信できなかったイベントを記録する。
func (c *Collector) RecordBroadcastDropped() {
	c.broadcastDropped.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewStatusMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewStatusMiddleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			c.RecordHTTPStatus(rec.statusCode)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Hijack はWebSocketアップグレードのために元のWriterへ委譲する。
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	sr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
