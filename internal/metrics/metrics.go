// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// eBay Webhook、レコメンドディスパッチャ、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordWebhookOutcome(decision string, status int)
	RecordJobSubmitted()
	RecordJobRejected()
	RecordJobOutcome(status string)
	RecordCompletionLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus        *prometheus.CounterVec
	requestLatency    prometheus.Histogram
	webhookOutcomes   *prometheus.CounterVec
	jobsSubmitted     prometheus.Counter
	jobsRejected      prometheus.Counter
	jobOutcomes       *prometheus.CounterVec
	completionLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bestdressed_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bestdressed_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		webhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bestdressed_ebay_webhook_total",
			Help: "eBay Webhookの検証結果別の件数",
		}, []string{"decision", "status_code"}),
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bestdressed_recommend_jobs_submitted_total",
			Help: "投入されたレコメンドジョブの合計数",
		}),
		jobsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bestdressed_recommend_jobs_rejected_total",
			Help: "キュー満杯で拒否されたレコメンドジョブの合計数",
		}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bestdressed_recommend_jobs_finished_total",
			Help: "終端状態別のレコメンドジョブ数",
		}, []string{"status"}),
		completionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bestdressed_recommend_completion_seconds",
			Help:    "AI生成呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.requestLatency,
		c.webhookOutcomes,
		c.jobsSubmitted,
		c.jobsRejected,
		c.jobOutcomes,
		c.completionLatency,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はHTTPリクエストの処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordWebhookOutcome はeBay Webhookの検証結果を記録する。
func (c *Collector) RecordWebhookOutcome(decision string, status int) {
	c.webhookOutcomes.WithLabelValues(decision, strconv.Itoa(status)).Inc()
}

// RecordJobSubmitted はレコメンドジョブの投入を記録する。
func (c *Collector) RecordJobSubmitted() {
	c.jobsSubmitted.Inc()
}

// RecordJobRejected はキュー満杯によるジョブ拒否を記録する。
func (c *Collector) RecordJobRejected() {
	c.jobsRejected.Inc()
}

// RecordJobOutcome はジョブの終端状態を記録する。
func (c *Collector) RecordJobOutcome(status string) {
	c.jobOutcomes.WithLabelValues(status).Inc()
}

// RecordCompletionLatency はAI生成呼び出しのレイテンシを記録する。
func (c *Collector) RecordCompletionLatency(duration time.Duration) {
	c.completionLatency.Observe(duration.Seconds())
}

// Middleware はレスポンスのステータスコードと処理時間を記録するHTTPミドルウェアを返す。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			c.RecordHTTPStatus(status)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
