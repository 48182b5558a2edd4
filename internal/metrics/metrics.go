// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// エンジンとハンドラー層から利用する。
type MetricsCollector interface {
	RecordLiveMessageReceived(action string)
	RecordLiveMessageDiscarded(reason string)
	RecordSocketReconnect()
	RecordRender()
	RecordAPIError(statusCode int)
	RecordLoadLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	liveReceived  *prometheus.CounterVec
	liveDiscarded *prometheus.CounterVec
	reconnects    prometheus.Counter
	renders       prometheus.Counter
	apiErrors     *prometheus.CounterVec
	loadLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		liveReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comenta_live_messages_received_total",
			Help: "受信したライブ更新メッセージのアクション別合計数",
		}, []string{"action"}),
		liveDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comenta_live_messages_discarded_total",
			Help: "破棄したライブ更新メッセージの理由別合計数",
		}, []string{"reason"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comenta_socket_reconnects_total",
			Help: "ライブ更新ソケットの再接続試行の合計数",
		}),
		renders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "comenta_renders_total",
			Help: "コメントツリーの全面再描画の合計数",
		}),
		apiErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "comenta_api_errors_total",
			Help: "バックエンドAPIエラーのステータスコード別合計数",
		}, []string{"status_code"}),
		loadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "comenta_page_load_latency_seconds",
			Help:    "ページロード（コメント一括取得）のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.liveReceived,
		c.liveDiscarded,
		c.reconnects,
		c.renders,
		c.apiErrors,
		c.loadLatency,
	)

	return c
}

// RecordLiveMessageReceived はライブ更新メッセージの受信を記録する。
func (c *Collector) RecordLiveMessageReceived(action string) {
	c.liveReceived.WithLabelValues(action).Inc()
}

// RecordLiveMessageDiscarded はライブ更新メッセージの破棄を記録する。
// reasonはpage-mismatch、no-id、self-echo、not-found、rate-limited、fetch-failed、parent-missingのいずれか。
func (c *Collector) RecordLiveMessageDiscarded(reason string) {
	c.liveDiscarded.WithLabelValues(reason).Inc()
}

// RecordSocketReconnect はソケットの再接続試行を記録する。
func (c *Collector) RecordSocketReconnect() {
	c.reconnects.Inc()
}

// RecordRender はコメントツリーの全面再描画を記録する。
func (c *Collector) RecordRender() {
	c.renders.Inc()
}

// RecordAPIError はバックエンドAPIエラーを記録する。
func (c *Collector) RecordAPIError(statusCode int) {
	c.apiErrors.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLoadLatency はページロードのレイテンシを記録する。
func (c *Collector) RecordLoadLatency(duration time.Duration) {
	c.loadLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
