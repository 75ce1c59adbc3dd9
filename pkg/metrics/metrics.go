package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Worker/API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		TaskTotal, TaskDuration, TaskSkipTotal,
		SubmitAttemptTotal, SubmitExhaustedTotal,
		CatchupEventTotal, WatermarkHeight, InFlightTasks,
	)
}

// TaskTotal 任务处理结果总数（按终态）
var TaskTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "actmp_task_total",
		Help: "任务处理结果总数（按终态）",
	},
	[]string{"outcome"}, // completed | skipped | failed
)

// TaskDuration 单次任务处理耗时（秒，含提交确认）
var TaskDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "actmp_task_duration_seconds",
		Help:    "单次任务处理耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"topic"},
)

// TaskSkipTotal 跳过原因计数（与 TaskTotal 配合可算 skip 比例）
var TaskSkipTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "actmp_task_skip_total",
		Help: "任务跳过总数（按原因）",
	},
	[]string{"reason"}, // already_processed | not_assignee | wrong_state | no_handler
)

// SubmitAttemptTotal 结果提交尝试总数（按结果）
var SubmitAttemptTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "actmp_submit_attempt_total",
		Help: "结果提交尝试总数（按结果）",
	},
	[]string{"result"}, // accepted | failed
)

// SubmitExhaustedTotal 重试耗尽的提交总数
var SubmitExhaustedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "actmp_submit_exhausted_total",
		Help: "重试耗尽的提交总数",
	},
)

// CatchupEventTotal 追赶扫描处理的事件总数
var CatchupEventTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "actmp_catchup_event_total",
		Help: "追赶扫描处理的事件总数",
	},
)

// WatermarkHeight 当前已持久化的水位块高
var WatermarkHeight = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "actmp_watermark_height",
		Help: "当前已持久化的水位块高",
	},
)

// InFlightTasks 当前处理中的任务数
var InFlightTasks = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "actmp_inflight_tasks",
		Help: "当前处理中的任务数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
