package collector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/config"
)

// NameGeneric is the registration name of the generic collector.
const NameGeneric = "generic"

// GenericCollector 通用采集器：每个数据源一个子查询
type GenericCollector struct {
	base
	sources []configuredSource
}

type configuredSource struct {
	src    Source
	labels map[string]string
}

// NewGenericCollector builds every configured source through the source registry.
func NewGenericCollector(cfg config.GenericConfig, opts ...Option) (*GenericCollector, error) {
	c := &GenericCollector{base: newBase(NameGeneric, cfg.CollectorCommon, opts...)}
	for _, sc := range cfg.Sources {
		src, err := NewSource(sc, c.timeout)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("generic source %s: %w", sc.Name, err)
		}
		c.sources = append(c.sources, configuredSource{src: src, labels: sc.Labels})
	}
	return c, nil
}

// AddSource appends a source built outside the registry (before Init).
func (c *GenericCollector) AddSource(src Source, labels map[string]string) {
	c.sources = append(c.sources, configuredSource{src: src, labels: labels})
}

func (c *GenericCollector) Init(_ context.Context) error {
	if len(c.sources) == 0 {
		return errors.New("generic: no sources configured")
	}
	c.log.Info("generic collector initialized", zap.Int("sources", len(c.sources)))
	return nil
}

func (c *GenericCollector) Collect(ctx context.Context) ([]Metric, error) {
	queries := make([]subquery, 0, len(c.sources))
	for _, s := range c.sources {
		queries = append(queries, subquery{name: s.src.Type(), target: s.src.Name(), run: c.fromSource(s)})
	}
	return c.gather(ctx, queries)
}

// fromSource 标签优先级：source 固定 > 配置 labels > 数据源自带 labels
func (c *GenericCollector) fromSource(s configuredSource) func(context.Context) ([]Metric, error) {
	return func(ctx context.Context) ([]Metric, error) {
		samples, err := s.src.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Metric, 0, len(samples))
		for _, smp := range samples {
			labels := make(map[string]string, len(smp.Labels)+len(s.labels)+1)
			for k, v := range smp.Labels {
				labels[k] = v
			}
			for k, v := range s.labels {
				labels[k] = v
			}
			labels["source"] = s.src.Name()
			out = append(out, c.metric(smp.Name, smp.Value, labels))
		}
		return out, nil
	}
}

func (c *GenericCollector) Close() error {
	var errs []error
	for _, s := range c.sources {
		if err := s.src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source %s: %w", s.src.Name(), err))
		}
	}
	return errors.Join(errs...)
}
