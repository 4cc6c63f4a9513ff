package collector

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricCopiesLabels(t *testing.T) {
	labels := map[string]string{"cluster": "c1"}
	m := NewMetric("ontap", "dcn_storage_iops_total", 1500, labels)

	labels["cluster"] = "mutated"
	assert.Equal(t, "c1", m.Labels()["cluster"])

	got := m.Labels()
	got["cluster"] = "also mutated"
	v, ok := m.Label("cluster")
	assert.True(t, ok)
	assert.Equal(t, "c1", v)
}

func TestNewMetricDefaults(t *testing.T) {
	before := time.Now().UnixMilli()
	m := NewMetric("generic", "dcn_x_metric", 100, nil)
	after := time.Now().UnixMilli()

	assert.NotNil(t, m.Labels())
	assert.Empty(t, m.Labels())
	assert.GreaterOrEqual(t, m.Timestamp(), before)
	assert.LessOrEqual(t, m.Timestamp(), after)

	m = NewMetric("generic", "dcn_x_metric", 100, nil, WithTimestamp(42))
	assert.EqualValues(t, 42, m.Timestamp())
}

func TestMetricJSON(t *testing.T) {
	m := NewMetric("storagegrid", "dcn_storagegrid_capacity_bytes", 5.5,
		map[string]string{"grid": "g1", "type": "used"}, WithTimestamp(1700000000000))

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"dcn_storagegrid_capacity_bytes","value":5.5,
		"labels":{"grid":"g1","type":"used"},"timestamp":1700000000000,"collector":"storagegrid"}`, string(b))

	var back Metric
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m.Key(), back.Key())
	assert.Equal(t, m.Collector(), back.Collector())
	assert.Equal(t, m.Timestamp(), back.Timestamp())

	b, err = json.Marshal(NewMetric("g", "n", 1, nil, WithTimestamp(1)))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"labels":{}`)

	assert.Error(t, json.Unmarshal([]byte(`{"value":1}`), &back))
}

func TestKeyIsOrderIndependent(t *testing.T) {
	a := NewMetric("ontap", "m", 1, map[string]string{"b": "2", "a": "1"})
	b := NewMetric("ontap", "m", 2, map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, `m{a="1",b="2"}`, a.Key())
	assert.Equal(t, a.Key(), b.Key())
}

func TestDuplicateKeys(t *testing.T) {
	ms := []Metric{
		NewMetric("ontap", "m", 1, map[string]string{"node": "n1"}),
		NewMetric("ontap", "m", 2, map[string]string{"node": "n2"}),
		NewMetric("ontap", "m", 3, map[string]string{"node": "n1"}),
		NewMetric("generic", "m", 3, map[string]string{"node": "n1"}),
		NewMetric("ontap", "m", 4, map[string]string{"node": "n1"}),
	}
	assert.Equal(t, []string{`ontap/m{node="n1"}`}, DuplicateKeys(ms))
	assert.Empty(t, DuplicateKeys(ms[:2]))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(context.Background(), "x", nil))

	e := Classify(context.Background(), "x", errors.New("boom"))
	assert.ErrorIs(t, e, ErrInternal)
	assert.Equal(t, "internal", e.Reason())
	assert.Contains(t, e.Error(), "boom")

	e = Classify(context.Background(), "x", context.DeadlineExceeded)
	assert.ErrorIs(t, e, ErrTimeout)
	assert.ErrorIs(t, e, context.DeadlineExceeded)
	assert.Equal(t, "timeout", e.Reason())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e = Classify(ctx, "x", errors.New("aborted"))
	assert.ErrorIs(t, e, ErrCanceled)
	assert.Equal(t, "canceled", e.Reason())

	orig := NewTimeoutError("x", nil)
	assert.Same(t, orig, Classify(context.Background(), "x", orig))
	assert.Equal(t, "x: collector timeout", orig.Error())
}

func TestDedupeKeepsFirst(t *testing.T) {
	ms := []Metric{
		NewMetric("ontap", "m", 1, map[string]string{"node": "n1"}),
		NewMetric("ontap", "m", 2, map[string]string{"node": "n1"}),
		NewMetric("generic", "m", 3, map[string]string{"node": "n1"}),
	}
	out, dups := Dedupe(ms)
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, out[0].Value())
	assert.Equal(t, "generic", out[1].Collector())
	assert.Equal(t, []string{`ontap/m{node="n1"}`}, dups)
	assert.Equal(t, 2.0, ms[1].Value(), "input slice untouched")
}

func TestFiniteDropsNaNAndInf(t *testing.T) {
	ms := []Metric{
		NewMetric("generic", "a", 1, nil),
		NewMetric("generic", "b", math.NaN(), nil),
		NewMetric("generic", "c", math.Inf(-1), nil),
	}
	out, dropped := Finite(ms)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Name())
	assert.Equal(t, []string{"b{}", "c{}"}, dropped)

	all, none := Finite(ms[:1])
	assert.Len(t, all, 1)
	assert.Nil(t, none)
}
