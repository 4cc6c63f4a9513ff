package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentMetricsRegistersAll(t *testing.T) {
	reg := NewPromRegistry(false)
	m := NewAgentMetrics(NewMetricFactory(reg))

	m.CyclesTotal.Inc()
	m.CollectErrorsTotal.WithLabelValues("ontap", "timeout").Inc()
	m.SubqueryErrorsTotal.WithLabelValues("ontap", "iops").Inc()
	m.CollectDuration.WithLabelValues("ontap").Observe(0.2)
	m.BatchSize.Set(12)
	m.SkippedRecordsTotal.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"dcn_collector_cycles_total",
		"dcn_collector_collect_errors_total",
		"dcn_collector_subquery_errors_total",
		"dcn_collector_collect_duration_seconds",
		"dcn_collector_batch_size",
		"dcn_collector_skipped_records_total",
	} {
		assert.True(t, names[want], want)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectErrorsTotal.WithLabelValues("ontap", "timeout")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.BatchSize))
}

func TestDoubleRegistrationPanics(t *testing.T) {
	f := NewMetricFactory(NewPromRegistry(false))
	NewAgentMetrics(f)
	assert.Panics(t, func() { NewAgentMetrics(f) })
}

func TestRuntimeCollectors(t *testing.T) {
	reg := NewPromRegistry(true)
	n, err := testutil.GatherAndCount(reg, "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
