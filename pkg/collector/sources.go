package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dcn-collector/pkg/config"
)

// Sample is one raw value produced by a generic source; the generic
// collector stamps it into a Metric.
type Sample struct {
	Name   string
	Value  float64
	Labels map[string]string
}

// Source 通用采集器的可插拔数据源
type Source interface {
	Name() string
	Type() string
	Collect(ctx context.Context) ([]Sample, error)
	Close() error
}

// SourceFactory builds a source from its config; timeout bounds backend requests.
type SourceFactory func(cfg config.SourceConfig, timeout time.Duration) (Source, error)

var (
	sourceMu        sync.RWMutex
	sourceFactories = map[string]SourceFactory{
		"static":     newStaticSource,
		"host":       newHostSource,
		"prometheus": newPrometheusSource,
	}
)

// RegisterSourceType 注册自定义数据源类型（重复注册覆盖）
func RegisterSourceType(typ string, f SourceFactory) {
	sourceMu.Lock()
	defer sourceMu.Unlock()
	sourceFactories[typ] = f
}

// SourceTypes returns the registered type names, sorted.
func SourceTypes() []string {
	sourceMu.RLock()
	defer sourceMu.RUnlock()
	out := make([]string, 0, len(sourceFactories))
	for t := range sourceFactories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewSource 按 type 查找工厂；未知类型返回错误
func NewSource(cfg config.SourceConfig, timeout time.Duration) (Source, error) {
	sourceMu.RLock()
	f, ok := sourceFactories[cfg.Type]
	sourceMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source type %q (known: %v)", cfg.Type, SourceTypes())
	}
	return f(cfg, timeout)
}

// defaultSourceMetric dcn_<source>_metric
func defaultSourceMetric(cfg config.SourceConfig) string {
	if cfg.Metric != "" {
		return cfg.Metric
	}
	return "dcn_" + cfg.Name + "_metric"
}

// staticSource emits one fixed value per cycle.
type staticSource struct {
	name   string
	metric string
	value  float64
}

func newStaticSource(cfg config.SourceConfig, _ time.Duration) (Source, error) {
	return &staticSource{name: cfg.Name, metric: defaultSourceMetric(cfg), value: cfg.Value}, nil
}

func (s *staticSource) Name() string { return s.name }
func (s *staticSource) Type() string { return "static" }
func (s *staticSource) Close() error { return nil }

func (s *staticSource) Collect(ctx context.Context) ([]Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []Sample{{Name: s.metric, Value: s.value}}, nil
}

// prometheusSource runs one instant query; one sample per returned series.
type prometheusSource struct {
	name   string
	metric string
	query  string
	rest   *restClient
}

const prometheusQueryPath = "/api/v1/query"

func newPrometheusSource(cfg config.SourceConfig, timeout time.Duration) (Source, error) {
	if cfg.URL == "" || cfg.Query == "" {
		return nil, fmt.Errorf("prometheus source %s requires url and query", cfg.Name)
	}
	rest, err := newRESTClient(cfg.URL, false, timeout, nil)
	if err != nil {
		return nil, err
	}
	return &prometheusSource{name: cfg.Name, metric: defaultSourceMetric(cfg), query: cfg.Query, rest: rest}, nil
}

func (s *prometheusSource) Name() string { return s.name }
func (s *prometheusSource) Type() string { return "prometheus" }

func (s *prometheusSource) Collect(ctx context.Context) ([]Sample, error) {
	series, err := queryVector(ctx, s.rest, prometheusQueryPath, s.query)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(series))
	for _, v := range series {
		out = append(out, Sample{Name: s.metric, Value: v.value, Labels: v.labels})
	}
	return out, nil
}

func (s *prometheusSource) Close() error {
	s.rest.close()
	return nil
}
