package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	DBSlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	DBSlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12s
		},
	)

	// 项目状态流转
	ProjectTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_transition_total",
			Help: "Project lifecycle transitions by source status, target status and action",
		},
		[]string{"from", "to", "action"},
	)

	// 被拒绝的流转（guard 或权限失败）
	ProjectTransitionRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "project_transition_rejected_total",
			Help: "Rejected project lifecycle actions by action and reason",
		},
		[]string{"action", "reason"},
	)

	// 任务生成计数
	TaskGenerationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_generation_count",
			Help: "Total number of tasks generated",
		},
		[]string{"source"}, // source: requirement
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// Outbox 事件发布结果
	OutboxEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_total",
			Help: "Outbox events processed by result",
		},
		[]string{"result"}, // sent, retry, failed
	)

	// 上传
	UploadCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_upload_total",
			Help: "Image uploads by kind and result",
		},
		[]string{"kind", "result"},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	DBSlowQueryCount.WithLabelValues(statement).Inc()
	DBSlowQueryDuration.Observe(duration.Seconds())
}

// RecordTransition 记录一次成功的状态流转
func RecordTransition(from, to, action string) {
	ProjectTransitionCount.WithLabelValues(from, to, action).Inc()
}

// RecordTransitionRejected 记录被拒绝的状态流转
func RecordTransitionRejected(action, reason string) {
	ProjectTransitionRejected.WithLabelValues(action, reason).Inc()
}

// AddTaskGeneration 增加任务生成计数
func AddTaskGeneration(source string, n int) {
	TaskGenerationCount.WithLabelValues(source).Add(float64(n))
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementOutbox 记录 outbox 发布结果
func IncrementOutbox(result string) {
	OutboxEventCount.WithLabelValues(result).Inc()
}

// IncrementUpload 记录上传结果
func IncrementUpload(kind, result string) {
	UploadCount.WithLabelValues(kind, result).Inc()
}
