package collector

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Metric 采集结果的不可变值对象（name/value/labels/timestamp/collector）
// Fields are unexported so a metric cannot be changed after construction;
// fan-in only moves values around.
type Metric struct {
	name      string
	value     float64
	labels    map[string]string
	timestamp int64
	collector string
}

// MetricOption customises a metric at construction time.
type MetricOption func(*Metric)

// WithTimestamp overrides the default construction-time timestamp (ms since epoch).
func WithTimestamp(ms int64) MetricOption {
	return func(m *Metric) {
		if ms > 0 {
			m.timestamp = ms
		}
	}
}

// NewMetric 创建指标，labels 会被复制，nil 视为空 map
func NewMetric(collector, name string, value float64, labels map[string]string, opts ...MetricOption) Metric {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	m := Metric{
		name:      name,
		value:     value,
		labels:    copied,
		timestamp: time.Now().UnixMilli(),
		collector: collector,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Metric) Name() string      { return m.name }
func (m Metric) Value() float64    { return m.value }
func (m Metric) Timestamp() int64  { return m.timestamp }
func (m Metric) Collector() string { return m.collector }

// Labels returns a copy of the label set; never nil.
func (m Metric) Labels() map[string]string {
	out := make(map[string]string, len(m.labels))
	for k, v := range m.labels {
		out[k] = v
	}
	return out
}

// Label returns a single label value.
func (m Metric) Label(key string) (string, bool) {
	v, ok := m.labels[key]
	return v, ok
}

// Key 返回 series 唯一标识 name{k=v,...}（label 按 key 排序）
func (m Metric) Key() string {
	keys := make([]string, 0, len(m.labels))
	for k := range m.labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(m.name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, m.labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

func (m Metric) String() string {
	return fmt.Sprintf("%s=%g@%d (%s)", m.Key(), m.value, m.timestamp, m.collector)
}

// wireMetric is the self-describing record published to the broker.
type wireMetric struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp int64             `json:"timestamp"`
	Collector string            `json:"collector"`
}

// MarshalJSON 输出完整结构，labels 为空时输出 {} 而不是 null
func (m Metric) MarshalJSON() ([]byte, error) {
	labels := m.labels
	if labels == nil {
		labels = map[string]string{}
	}
	return json.Marshal(wireMetric{
		Name:      m.name,
		Value:     m.value,
		Labels:    labels,
		Timestamp: m.timestamp,
		Collector: m.collector,
	})
}

// UnmarshalJSON is used by downstream consumers and tests reading records back.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var w wireMetric
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return fmt.Errorf("metric record without name")
	}
	*m = NewMetric(w.Collector, w.Name, w.Value, w.Labels, WithTimestamp(w.Timestamp))
	return nil
}

// Finite 丢弃 NaN/±Inf（JSON 记录无法表示）；返回保留的指标和被丢弃的 key
func Finite(metrics []Metric) ([]Metric, []string) {
	var dropped []string
	out := metrics[:0:0]
	for _, m := range metrics {
		if math.IsNaN(m.value) || math.IsInf(m.value, 0) {
			dropped = append(dropped, m.Key())
			continue
		}
		out = append(out, m)
	}
	if dropped == nil {
		return metrics, nil
	}
	return out, dropped
}

// DuplicateKeys 返回同一批次中重复出现的 series key（用于检测建模错误）
func DuplicateKeys(metrics []Metric) []string {
	_, dups := Dedupe(metrics)
	return dups
}

// Dedupe 同一采集器同一 series 只保留第一次出现的值；返回去重后的切片和被丢弃的 key
func Dedupe(metrics []Metric) ([]Metric, []string) {
	seen := make(map[string]int, len(metrics))
	out := metrics[:0:0]
	var dups []string
	for _, m := range metrics {
		k := m.collector + "/" + m.Key()
		seen[k]++
		switch seen[k] {
		case 1:
			out = append(out, m)
		case 2:
			dups = append(dups, k)
		}
	}
	return out, dups
}
