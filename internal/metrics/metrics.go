// Package metrics 审计流程的 Prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager 指标管理器；nil 接收者上的方法均为空操作
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	batches        prometheus.Counter
	filesProcessed *prometheus.CounterVec
	records        prometheus.Counter
	verdicts       *prometheus.CounterVec
	fileDuration   prometheus.Histogram
	moveEvents     prometheus.Gauge

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager 创建指标管理器，默认使用独立注册表
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "chargeaudit",
		subsystem:        "audit",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.batches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "batches_total",
		Help:      "Total number of audit batches run",
	})
	m.filesProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "files_total",
		Help:      "Total number of files processed by status",
	}, []string{"status"})
	m.records = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_total",
		Help:      "Total number of records audited",
	})
	m.verdicts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "verdicts_total",
		Help:      "Audit verdicts by outcome",
	}, []string{"verdict"})
	m.fileDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "file_duration_seconds",
		Help:      "Time spent normalizing and auditing one file",
		Buckets:   m.histogramBuckets,
	})
	m.moveEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "move_events_loaded",
		Help:      "Move-in events loaded for the latest batch",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   m.histogramBuckets,
	}, []string{"method", "route"})
}

func (m *Manager) active() bool {
	return m != nil && m.enabled
}

// Registry 注册表
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordBatch 记录一次批量审计
func (m *Manager) RecordBatch(moveEvents int) {
	if !m.active() {
		return
	}
	m.batches.Inc()
	m.moveEvents.Set(float64(moveEvents))
}

// RecordFile 记录单个文件结果
func (m *Manager) RecordFile(status string, records int, duration time.Duration) {
	if !m.active() {
		return
	}
	m.filesProcessed.WithLabelValues(status).Inc()
	m.records.Add(float64(records))
	m.fileDuration.Observe(duration.Seconds())
}

// RecordVerdicts 累加结论计数
func (m *Manager) RecordVerdicts(counts map[string]int) {
	if !m.active() {
		return
	}
	for verdict, n := range counts {
		m.verdicts.WithLabelValues(verdict).Add(float64(n))
	}
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Manager) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if !m.active() {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
