// Package metrics 进度引擎的 prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	apperrors "github.com/wfunc/gamemaster/internal/errors"
)

const (
	Namespace = "gamemaster"

	SubsystemEngine    = "engine"
	SubsystemOracle    = "oracle"
	SubsystemLedger    = "ledger"
	SubsystemGenerator = "generator"
	SubsystemAPI       = "api"

	LabelEvent   = "event"
	LabelOutcome = "outcome"
	LabelMethod  = "method"
	LabelResult  = "result"
	LabelCode    = "code"
	LabelRoute   = "route"
	LabelStatus  = "status"
)

var DefBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// engine
var (
	// 事件处理结果
	EventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "events_total",
			Help:      "Total number of handled ledger events.",
		},
		[]string{LabelEvent, LabelOutcome})
	// 事件处理耗时
	EventHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "event_seconds",
			Help:      "Histogram of event handling latency.",
			Buckets:   DefBuckets,
		},
		[]string{LabelEvent})
	// 处理失败，按错误码
	FailureCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "failures_total",
			Help:      "Total number of failed events by error code.",
		},
		[]string{LabelEvent, LabelCode})
	// 对账补分配
	ReconcileCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "reconcile_total",
			Help:      "Total number of reconciliation attempts.",
		},
		[]string{LabelResult})
	// 重投次数用尽后跳过的事件
	DeadLetterCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemEngine,
			Name:      "dead_letters_total",
			Help:      "Total number of events skipped after exhausting redeliveries.",
		},
		[]string{LabelEvent})
)

// oracle
var (
	VerdictCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOracle,
			Name:      "verdicts_total",
			Help:      "Total number of verdicts, fail-closed ones included.",
		},
		[]string{LabelResult})
	VerdictHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemOracle,
			Name:      "verdict_seconds",
			Help:      "Histogram of verdict latency.",
			Buckets:   DefBuckets,
		})
)

// ledger
var (
	LedgerWriteCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemLedger,
			Name:      "writes_total",
			Help:      "Total number of ledger writes.",
		},
		[]string{LabelMethod, LabelResult})
	LedgerWriteHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemLedger,
			Name:      "write_seconds",
			Help:      "Histogram of ledger write latency.",
			Buckets:   DefBuckets,
		},
		[]string{LabelMethod})
	// 已处理到的区块
	CursorGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: SubsystemLedger,
			Name:      "cursor_block",
			Help:      "Next block the poller will read.",
		})
)

// generator
var (
	GeneratedLevelCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemGenerator,
			Name:      "levels_total",
			Help:      "Total number of generated levels.",
		},
		[]string{LabelResult})
)

// api
var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{LabelMethod, LabelRoute, LabelStatus})

	RequestHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: SubsystemAPI,
			Name:      "request_seconds",
			Help:      "HTTP request latency.",
			Buckets:   DefBuckets,
		},
		[]string{LabelRoute})
)

var registerOnce sync.Once

// RegisterMetrics 注册全部指标到默认注册表，可重复调用
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(EventCounter)
		prometheus.MustRegister(EventHistogram)
		prometheus.MustRegister(FailureCounter)
		prometheus.MustRegister(ReconcileCounter)
		prometheus.MustRegister(DeadLetterCounter)

		prometheus.MustRegister(VerdictCounter)
		prometheus.MustRegister(VerdictHistogram)

		prometheus.MustRegister(LedgerWriteCounter)
		prometheus.MustRegister(LedgerWriteHistogram)
		prometheus.MustRegister(CursorGauge)

		prometheus.MustRegister(GeneratedLevelCounter)

		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestHistogram)
	})
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvent 记录一次事件处理
func ObserveEvent(event, outcome string, elapsed time.Duration) {
	EventCounter.WithLabelValues(event, outcome).Inc()
	EventHistogram.WithLabelValues(event).Observe(elapsed.Seconds())
}

// ObserveFailure 按错误码记录处理失败
func ObserveFailure(event string, err error) {
	code := apperrors.GetCode(err)
	FailureCounter.WithLabelValues(event, strconv.Itoa(int(code))).Inc()
}

// ObserveVerdict 记录一次裁决
func ObserveVerdict(passed, failClosed bool, elapsed time.Duration) {
	result := "failed"
	switch {
	case failClosed:
		result = "fail_closed"
	case passed:
		result = "passed"
	}
	VerdictCounter.WithLabelValues(result).Inc()
	VerdictHistogram.Observe(elapsed.Seconds())
}

// ObserveLedgerWrite 记录一次链上写入
func ObserveLedgerWrite(method string, err error, elapsed time.Duration) {
	LedgerWriteCounter.WithLabelValues(method, Result(err)).Inc()
	LedgerWriteHistogram.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveRequest 记录一次HTTP请求
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestHistogram.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Result 将错误转换为结果标签
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
