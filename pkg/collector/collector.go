package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/config"
)

// DefaultTimeout 未配置 timeout 时单次 Collect 的上限
const DefaultTimeout = 30 * time.Second

// Collector 采集器核心接口（所有采集器必须实现）
type Collector interface {
	Name() string                                  // 采集器名称（唯一标识）
	Enabled() bool                                 // 未启用的采集器不参与 fan-out
	Timeout() time.Duration                        // 单次 Collect 的上限
	Init(ctx context.Context) error                // 初始化（预检查配置/后端）
	Collect(ctx context.Context) ([]Metric, error) // 采集一个周期的指标
	Close() error                                  // 关闭（释放后端连接）
}

// Option configures optional collector dependencies.
type Option func(*base)

// WithLogger sets the logger; the collector name is attached as a field.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.log = l
		}
	}
}

// WithSubqueryErrors counts sub-query failures on the given vector
// (labels: collector, query).
func WithSubqueryErrors(c *prometheus.CounterVec) Option {
	return func(b *base) { b.subqueryErrors = c }
}

// WithClock overrides the timestamp source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// base holds the immutable settings every variant owns.
type base struct {
	name           string
	enabled        bool
	timeout        time.Duration
	log            *zap.Logger
	subqueryErrors *prometheus.CounterVec
	now            func() time.Time
}

func newBase(name string, common config.CollectorCommon, opts ...Option) base {
	b := base{
		name:    name,
		enabled: common.Enabled,
		timeout: common.TimeoutDuration(),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.log = b.log.With(zap.String("collector", name))
	return b
}

func (b *base) Name() string           { return b.name }
func (b *base) Enabled() bool          { return b.enabled }
func (b *base) Timeout() time.Duration { return b.timeout }

// metric stamps a value with this collector's name and the cycle timestamp.
func (b *base) metric(name string, value float64, labels map[string]string) Metric {
	return NewMetric(b.name, name, value, labels, WithTimestamp(b.now().UnixMilli()))
}

// subquery is one independent piece of a collector's cycle (e.g. iops of one cluster).
type subquery struct {
	name   string // counter label, e.g. "iops"
	target string // cluster / grid / source
	run    func(ctx context.Context) ([]Metric, error)
}

func (b *base) subqueryFailed(q subquery, err error) {
	b.log.Warn("sub-query failed",
		zap.String("query", q.name),
		zap.String("target", q.target),
		zap.Error(err))
	if b.subqueryErrors != nil {
		b.subqueryErrors.WithLabelValues(b.name, q.name).Inc()
	}
}

// gather 依次执行子查询；单个子查询失败只记录日志和计数，不丢弃已采集的指标。
// NaN/±Inf 值被丢弃并按子查询失败计数。全部失败时返回错误；ctx 结束时直接返回 ctx 错误（超时的采集器不贡献任何指标）。
func (b *base) gather(ctx context.Context, queries []subquery) ([]Metric, error) {
	var (
		out  []Metric
		errs []error
	)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s %s: %w", q.name, q.target, err)
		}
		metrics, err := q.run(ctx)
		if err == nil {
			var dropped []string
			if metrics, dropped = Finite(metrics); len(dropped) > 0 {
				nonFinite := fmt.Errorf("non-finite values dropped: %v", dropped)
				if len(metrics) == 0 {
					err = nonFinite
				} else {
					b.subqueryFailed(q, nonFinite)
				}
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%s %s: %w", q.name, q.target, ctxErr)
			}
			b.subqueryFailed(q, err)
			errs = append(errs, fmt.Errorf("%s %s: %w", q.name, q.target, err))
			continue
		}
		out = append(out, metrics...)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	b.log.Debug("collected metrics",
		zap.Int("count", len(out)),
		zap.Int("failed_subqueries", len(errs)))
	return out, nil
}
