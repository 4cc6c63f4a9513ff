package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every self-metric.
const Namespace = "dcn_collector"

// MetricFactory 指标工厂，用于统一创建并注册指标（counter/gauge/histogram）
type MetricFactory struct {
	reg  Registers
	auto promauto.Factory
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg, auto: promauto.With(reg)}
}

// Registry returns the registry the factory registers on.
func (m *MetricFactory) Registry() Registers { return m.reg }

// NewCyclesTotal 完成的采集周期数
func (m *MetricFactory) NewCyclesTotal() prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "cycles_total",
		Help:      "Completed collection cycles",
	})
}

// NewCycleDurationSeconds 单个周期（fan-out + publish）耗时
func (m *MetricFactory) NewCycleDurationSeconds() prometheus.Histogram {
	return m.auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of one collect-and-publish cycle",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
}

// NewCycleOverrunsTotal 周期耗时超过 cadence 的次数
func (m *MetricFactory) NewCycleOverrunsTotal() prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "cycle_overruns_total",
		Help:      "Cycles whose elapsed time exceeded the cadence",
	})
}

// NewBatchSize 最近一个周期的批次大小
func (m *MetricFactory) NewBatchSize() prometheus.Gauge {
	return m.auto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "batch_size",
		Help:      "Metrics aggregated in the last cycle",
	})
}

// NewCollectErrorsTotal 采集器失败次数
// 标签：collector 采集器名称；reason timeout/internal/canceled
func (m *MetricFactory) NewCollectErrorsTotal() *prometheus.CounterVec {
	return m.auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "collect_errors_total",
		Help:      "Failed collector invocations",
	}, []string{"collector", "reason"})
}

// NewCollectDurationSeconds 每个采集器每次 Collect 的耗时
// 分桶使用 Prometheus 默认分桶
func (m *MetricFactory) NewCollectDurationSeconds() *prometheus.HistogramVec {
	return m.auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "collect_duration_seconds",
		Help:      "Collection duration per collector",
		Buckets:   prometheus.DefBuckets,
	}, []string{"collector"})
}

// NewSubqueryErrorsTotal 采集器内部子查询失败次数
func (m *MetricFactory) NewSubqueryErrorsTotal() *prometheus.CounterVec {
	return m.auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "subquery_errors_total",
		Help:      "Failed sub-queries inside a collector; the collector still reports partial results",
	}, []string{"collector", "query"})
}

func (m *MetricFactory) NewPublishFailuresTotal() prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "publish_failures_total",
		Help:      "Batches dropped because the broker rejected or timed out",
	})
}

func (m *MetricFactory) NewPublishedMetricsTotal() prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "published_metrics_total",
		Help:      "Metrics acknowledged by the broker",
	})
}

// NewSkippedRecordsTotal 无法编码而被单独跳过的记录（例如 NaN/Inf）
func (m *MetricFactory) NewSkippedRecordsTotal() prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "skipped_records_total",
		Help:      "Records skipped by the publisher because they could not be encoded",
	})
}
