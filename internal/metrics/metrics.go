// Package metrics はゲートウェイのPrometheusメトリクスを提供する。
//
// 専用のレジストリを持ち、/metrics で公開する。メソッドはnilレシーバでも
// 何もせずに戻るため、メトリクスを無効にした構成でもそのまま呼び出せる。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// namespace はすべてのメトリクス名の接頭辞。
const namespace = "stitch_gateway"

// キャッシュ操作の結果ラベル。
const (
	cacheHit        = "hit"
	cacheMiss       = "miss"
	cacheInvalidate = "invalidate"
)

// Metrics はゲートウェイのコレクタ群。
type Metrics struct {
	// registry はこのインスタンス専用のレジストリ。
	registry *prometheus.Registry
	// requests はルート・メソッド・ステータスごとのリクエスト数。
	requests *prometheus.CounterVec
	// latency はルート・メソッドごとの処理時間。
	latency *prometheus.HistogramVec
	// authFailures は認証失敗の理由ごとの件数。
	authFailures *prometheus.CounterVec
	// rateLimited はレート制限で拒否した操作種別ごとの件数。
	rateLimited *prometheus.CounterVec
	// profileCache はプロフィールキャッシュの操作結果ごとの件数。
	profileCache *prometheus.CounterVec
}

// New はコレクタを生成し、専用レジストリに登録する。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "処理したHTTPリクエスト数",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTPリクエストの処理時間",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "認証に失敗したリクエスト数",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "レート制限で拒否したリクエスト数",
		}, []string{"class"}),
		profileCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_cache_operations_total",
			Help:      "プロフィールキャッシュの操作数",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.authFailures,
		m.rateLimited,
		m.profileCache,
	)
	return m
}

// Handler は/metrics用のHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest は1リクエスト分の件数と処理時間を記録する。
// route にはマッチしたルートのパターンを渡し、未マッチの場合は空文字列でよい。
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// AuthFailure は認証失敗を理由つきで記録する。
func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// RateLimited はレート制限による拒否を記録する。
func (m *Metrics) RateLimited(class string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(class).Inc()
}

// CacheHit はキャッシュヒットを記録する。
func (m *Metrics) CacheHit() { m.cacheResult(cacheHit) }

// CacheMiss はキャッシュミスを記録する。
func (m *Metrics) CacheMiss() { m.cacheResult(cacheMiss) }

// CacheInvalidated はキャッシュの無効化を記録する。
func (m *Metrics) CacheInvalidated() { m.cacheResult(cacheInvalidate) }

func (m *Metrics) cacheResult(result string) {
	if m == nil {
		return
	}
	m.profileCache.WithLabelValues(result).Inc()
}
