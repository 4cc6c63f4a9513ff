package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics 编排器与采集器共用的自监控指标
type AgentMetrics struct {
	CyclesTotal           prometheus.Counter
	CycleDuration         prometheus.Histogram
	CycleOverrunsTotal    prometheus.Counter
	BatchSize             prometheus.Gauge
	CollectErrorsTotal    *prometheus.CounterVec
	CollectDuration       *prometheus.HistogramVec
	SubqueryErrorsTotal   *prometheus.CounterVec
	PublishFailuresTotal  prometheus.Counter
	PublishedMetricsTotal prometheus.Counter
	SkippedRecordsTotal   prometheus.Counter
}

// NewAgentMetrics 一次性创建并注册全部自监控指标（同一 registry 只能调用一次）
func NewAgentMetrics(f *MetricFactory) *AgentMetrics {
	return &AgentMetrics{
		CyclesTotal:           f.NewCyclesTotal(),
		CycleDuration:         f.NewCycleDurationSeconds(),
		CycleOverrunsTotal:    f.NewCycleOverrunsTotal(),
		BatchSize:             f.NewBatchSize(),
		CollectErrorsTotal:    f.NewCollectErrorsTotal(),
		CollectDuration:       f.NewCollectDurationSeconds(),
		SubqueryErrorsTotal:   f.NewSubqueryErrorsTotal(),
		PublishFailuresTotal:  f.NewPublishFailuresTotal(),
		PublishedMetricsTotal: f.NewPublishedMetricsTotal(),
		SkippedRecordsTotal:   f.NewSkippedRecordsTotal(),
	}
}

// NewNopAgentMetrics 注册到独立 registry，用于测试或不暴露指标的场景
func NewNopAgentMetrics() *AgentMetrics {
	return NewAgentMetrics(NewMetricFactory(NewPromRegistry(false)))
}
