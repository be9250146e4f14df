package gateway

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 判定結果のラベル値。拒否の場合は拒否コードを使う。
const outcomeForwarded = "forwarded"

// metrics はゲートウェイのPrometheusメトリクス。
// サーバーごとに専用のレジストリを持つ。
type metrics struct {
	registry         *prometheus.Registry
	requests         *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

// newMetrics はメトリクスを生成してレジストリに登録する。
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docgate_requests_total",
				Help: "Total number of proxied route requests by access decision.",
			},
			[]string{"route", "outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docgate_upstream_duration_seconds",
				Help:    "Time spent waiting on the upstream API.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
	m.registry.MustRegister(
		m.requests,
		m.upstreamDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// observeRequest はルートへのリクエストの判定結果を記録する。
func (m *metrics) observeRequest(route, outcome string) {
	m.requests.WithLabelValues(route, outcome).Inc()
}

// observeUpstream は上流呼び出しの所要時間を記録する。
func (m *metrics) observeUpstream(route string, d time.Duration) {
	m.upstreamDuration.WithLabelValues(route).Observe(d.Seconds())
}

// handler は/metricsのハンドラを返す。
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
