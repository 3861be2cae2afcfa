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
// 認証・検索のサービス層から利用する。
type MetricsCollector interface {
	RecordLoginSuccess(provider string)
	RecordLoginFailure(provider string, reason string)
	RecordSearch(outcome string)
	ObserveUpstreamRequest(duration time.Duration, outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess    *prometheus.CounterVec
	loginFail       *prometheus.CounterVec
	searches        *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picsearch_login_success_total",
			Help: "OAuthログイン成功のプロバイダー別合計数",
		}, []string{"provider"}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picsearch_login_fail_total",
			Help: "OAuthログイン失敗のプロバイダー・理由別合計数",
		}, []string{"provider", "reason"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picsearch_searches_total",
			Help: "画像検索の結果別合計数",
		}, []string{"outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "picsearch_upstream_latency_seconds",
			Help:    "画像カタログAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picsearch_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.searches,
		c.upstreamLatency,
		c.httpStatus,
	)

	return c
}

// RecordLoginSuccess はOAuthログイン成功を記録する。
func (c *Collector) RecordLoginSuccess(provider string) {
	c.loginSuccess.WithLabelValues(provider).Inc()
}

// RecordLoginFailure はOAuthログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(provider string, reason string) {
	c.loginFail.WithLabelValues(provider, reason).Inc()
}

// RecordSearch は画像検索の実行結果を記録する。
func (c *Collector) RecordSearch(outcome string) {
	c.searches.WithLabelValues(outcome).Inc()
}

// ObserveUpstreamRequest は画像カタログAPI呼び出しのレイテンシを記録する。
func (c *Collector) ObserveUpstreamRequest(duration time.Duration, outcome string) {
	c.upstreamLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
