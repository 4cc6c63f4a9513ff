// Package orchestrator runs the fixed-cadence collect/publish loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/collector"
	"github.com/dcn-collector/pkg/metrics"
	"github.com/dcn-collector/pkg/publisher"
)

// DefaultShutdownTimeout bounds the in-flight cycle after a stop signal.
const DefaultShutdownTimeout = 30 * time.Second

// Options 编排器运行参数（构造后只读）
type Options struct {
	Cadence         time.Duration
	Topic           string
	ShutdownTimeout time.Duration
}

// Orchestrator 持有启用的采集器和唯一的 Publisher，按固定周期 fan-out/fan-in/publish
type Orchestrator struct {
	opts Options
	pub  publisher.Publisher
	m    *metrics.AgentMetrics
	log  *zap.Logger

	mu         sync.RWMutex
	collectors []collector.Collector
	names      map[string]struct{}
	inflight   map[string]*atomic.Bool
	last       *CycleReport
	starting   bool
	started    bool

	state atomic.Int32
	seq   atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an orchestrator; disabled collectors and duplicate names are dropped.
// Nil metrics or logger fall back to private/no-op instances.
func New(opts Options, collectors []collector.Collector, pub publisher.Publisher, m *metrics.AgentMetrics, log *zap.Logger) (*Orchestrator, error) {
	if opts.Cadence <= 0 {
		return nil, fmt.Errorf("orchestrator: cadence must be positive, got %s", opts.Cadence)
	}
	if opts.Topic == "" {
		return nil, publisher.ErrEmptyTopic
	}
	if pub == nil {
		return nil, errors.New("orchestrator: nil publisher")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if m == nil {
		m = metrics.NewNopAgentMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		opts:     opts,
		pub:      pub,
		m:        m,
		log:      log.With(zap.String("component", "orchestrator")),
		names:    make(map[string]struct{}),
		inflight: make(map[string]*atomic.Bool),
	}
	for _, c := range collectors {
		o.Register(c)
	}
	return o, nil
}

// Register 注册采集器：未启用或重名的采集器被忽略；Start 之后不再接受注册
func (o *Orchestrator) Register(c collector.Collector) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case c == nil:
		return false
	case o.started:
		o.log.Warn("register after start ignored", zap.String("collector", c.Name()))
		return false
	case !c.Enabled():
		o.log.Debug("collector disabled", zap.String("collector", c.Name()))
		return false
	}
	if _, dup := o.names[c.Name()]; dup {
		o.log.Warn("duplicate collector ignored", zap.String("collector", c.Name()))
		return false
	}
	o.names[c.Name()] = struct{}{}
	o.inflight[c.Name()] = new(atomic.Bool)
	o.collectors = append(o.collectors, c)
	o.log.Debug("registered collector", zap.String("collector", c.Name()), zap.Duration("timeout", c.Timeout()))
	return true
}

// Collectors returns the registered collector names in registration order.
func (o *Orchestrator) Collectors() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.collectors))
	for _, c := range o.collectors {
		out = append(out, c.Name())
	}
	return out
}

func (o *Orchestrator) State() State { return State(o.state.Load()) }

func (o *Orchestrator) setState(s State) { o.state.Store(int32(s)) }

// LastReport 最近一个周期的报告副本
func (o *Orchestrator) LastReport() (CycleReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return CycleReport{}, false
	}
	return o.last.clone(), true
}

// Residual 本周期剩余睡眠时间 max(0, cadence - elapsed)
func Residual(cadence, elapsed time.Duration) time.Duration {
	if elapsed >= cadence {
		return 0
	}
	return cadence - elapsed
}

func (o *Orchestrator) snapshot() []collector.Collector {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]collector.Collector(nil), o.collectors...)
}

// RunCycle 执行一个完整周期：并发采集 → 按注册顺序合并 → 发布一次 → 计算剩余睡眠
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	start := time.Now()
	report := CycleReport{Seq: o.seq.Add(1), Started: start}

	o.setState(StateCollecting)
	results := o.collect(ctx, o.snapshot())
	batch, failed := o.fanIn(results)
	report.Collected = len(batch)
	report.Failed = failed

	o.setState(StatePublishing)
	if err := o.publish(ctx, batch); err != nil {
		report.PublishErr = err.Error()
	} else {
		report.Published = len(batch) > 0
	}

	report.Elapsed = time.Since(start)
	report.Sleep = Residual(o.opts.Cadence, report.Elapsed)
	report.Overrun = report.Elapsed > o.opts.Cadence

	o.m.CyclesTotal.Inc()
	o.m.CycleDuration.Observe(report.Elapsed.Seconds())
	o.m.BatchSize.Set(float64(report.Collected))
	if report.Overrun {
		o.m.CycleOverrunsTotal.Inc()
		o.log.Warn("cycle overran cadence",
			zap.Uint64("seq", report.Seq),
			zap.Duration("elapsed", report.Elapsed),
			zap.Duration("cadence", o.opts.Cadence))
	}
	o.log.Info("collection cycle completed",
		zap.Uint64("seq", report.Seq),
		zap.Int("metrics", report.Collected),
		zap.Strings("failed", report.Failed),
		zap.Bool("published", report.Published),
		zap.Duration("elapsed", report.Elapsed),
		zap.Duration("sleep", report.Sleep))

	o.mu.Lock()
	stored := report.clone()
	o.last = &stored
	o.mu.Unlock()
	return report
}

// collect 每个采集器一个 goroutine，结果顺序与注册顺序一致
func (o *Orchestrator) collect(ctx context.Context, collectors []collector.Collector) []Result {
	if len(collectors) == 0 {
		return nil
	}
	mapper := iter.Mapper[collector.Collector, Result]{MaxGoroutines: len(collectors)}
	return mapper.Map(collectors, func(c *collector.Collector) Result {
		return o.collectOne(ctx, *c)
	})
}

type outcome struct {
	metrics []collector.Metric
	err     error
}

// errStillRunning 上一周期的 Collect 超时后仍未返回
var errStillRunning = errors.New("previous collect still running")

func (o *Orchestrator) busyFlag(name string) *atomic.Bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.inflight[name]
}

// collectOne 超时由编排器强制执行：即使采集器忽略 ctx，超时后也立即返回失败。
// 同一采集器最多一个 Collect 在执行；上一次仍未返回时本周期直接记为超时，不再调用。
func (o *Orchestrator) collectOne(ctx context.Context, c collector.Collector) Result {
	name := c.Name()
	start := time.Now()
	busy := o.busyFlag(name)
	if busy == nil {
		busy = new(atomic.Bool)
	}
	if !busy.CompareAndSwap(false, true) {
		o.log.Warn("collector skipped, previous call still running", zap.String("collector", name))
		res := Result{Collector: name, Err: collector.NewTimeoutError(name, errStillRunning), Duration: time.Since(start)}
		o.m.CollectDuration.WithLabelValues(name).Observe(res.Duration.Seconds())
		return res
	}

	cctx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	ch := make(chan outcome, 1)
	go func() {
		defer busy.Store(false)
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: collector.NewInternalError(name, fmt.Errorf("panic: %v", r))}
			}
		}()
		ms, err := c.Collect(cctx)
		ch <- outcome{metrics: ms, err: err}
	}()

	res := Result{Collector: name}
	select {
	case out := <-ch:
		if out.err != nil {
			res.Err = collector.Classify(cctx, name, out.err)
		} else {
			res.Metrics = out.metrics
		}
	case <-cctx.Done():
		res.Err = collector.Classify(cctx, name, cctx.Err())
	}
	res.Duration = time.Since(start)
	o.m.CollectDuration.WithLabelValues(name).Observe(res.Duration.Seconds())
	return res
}

// fanIn 失败的采集器不贡献任何指标，每个失败只记录一次警告；同一采集器的重复 series 只保留第一条
func (o *Orchestrator) fanIn(results []Result) ([]collector.Metric, []string) {
	total := 0
	for _, r := range results {
		if r.Err == nil {
			total += len(r.Metrics)
		}
	}
	batch := make([]collector.Metric, 0, total)
	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Collector)
			o.m.CollectErrorsTotal.WithLabelValues(r.Collector, r.Err.Reason()).Inc()
			o.log.Warn("collector failed",
				zap.String("collector", r.Collector),
				zap.String("reason", r.Err.Reason()),
				zap.Duration("duration", r.Duration),
				zap.Error(r.Err))
			continue
		}
		ms, dups := collector.Dedupe(r.Metrics)
		if len(dups) > 0 {
			o.log.Warn("duplicate series dropped",
				zap.String("collector", r.Collector),
				zap.Strings("keys", dups))
		}
		batch = append(batch, ms...)
	}
	return batch, failed
}

// publish 空批次跳过；失败时整批丢弃，不带入下一周期
func (o *Orchestrator) publish(ctx context.Context, batch []collector.Metric) error {
	if len(batch) == 0 {
		o.log.Warn("no metrics collected this cycle")
		return nil
	}
	if err := o.pub.Send(ctx, o.opts.Topic, batch); err != nil {
		o.m.PublishFailuresTotal.Inc()
		o.log.Error("publish failed, batch dropped",
			zap.String("topic", o.opts.Topic),
			zap.Int("metrics", len(batch)),
			zap.Error(err))
		return err
	}
	o.m.PublishedMetricsTotal.Add(float64(len(batch)))
	return nil
}

// Run 阻塞运行周期循环直到 stop 被取消。进行中的周期在 stop 后继续完成，
// 超过 ShutdownTimeout 后才取消进行中的采集。
func (o *Orchestrator) Run(stop context.Context) error {
	// 周期 ctx 与 stop 解耦，只由硬截止时间取消
	work, cancelWork := context.WithCancel(context.WithoutCancel(stop))
	defer cancelWork()
	go o.hardDeadline(stop, work, cancelWork)

	o.log.Info("orchestrator started",
		zap.Duration("cadence", o.opts.Cadence),
		zap.String("topic", o.opts.Topic),
		zap.Strings("collectors", o.Collectors()))

loop:
	for stop.Err() == nil {
		report := o.RunCycle(work)
		if stop.Err() != nil {
			break
		}
		o.setState(StateSleeping)
		if report.Sleep <= 0 {
			continue
		}
		t := time.NewTimer(report.Sleep)
		select {
		case <-stop.Done():
			t.Stop()
			break loop
		case <-t.C:
		}
	}
	o.setState(StateStopped)
	o.log.Info("orchestrator stopped", zap.Uint64("cycles", o.seq.Load()))
	return nil
}

func (o *Orchestrator) hardDeadline(stop, work context.Context, cancelWork context.CancelFunc) {
	select {
	case <-work.Done():
		return
	case <-stop.Done():
	}
	t := time.NewTimer(o.opts.ShutdownTimeout)
	defer t.Stop()
	select {
	case <-work.Done():
	case <-t.C:
		o.log.Warn("shutdown deadline exceeded, canceling in-flight collection",
			zap.Duration("shutdown_timeout", o.opts.ShutdownTimeout))
		cancelWork()
	}
}

// InitAll 初始化全部采集器，任一失败即返回
func (o *Orchestrator) InitAll(ctx context.Context) error {
	for _, c := range o.snapshot() {
		if err := c.Init(ctx); err != nil {
			return fmt.Errorf("collector %s init failed: %w", c.Name(), err)
		}
		o.log.Debug("collector initialized", zap.String("collector", c.Name()))
	}
	return nil
}

// Start 初始化采集器并在后台运行循环（非阻塞）。失败后可修正再次 Start。
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started || o.starting {
		o.mu.Unlock()
		return errors.New("orchestrator: already started")
	}
	o.starting = true
	o.mu.Unlock()

	err := o.InitAll(ctx)
	if err == nil && len(o.snapshot()) == 0 {
		err = errors.New("orchestrator: no enabled collectors")
	}
	o.mu.Lock()
	o.starting = false
	o.started = err == nil
	o.mu.Unlock()
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go func() {
		defer close(o.done)
		_ = o.Run(runCtx)
	}()
	return nil
}

// Shutdown 停止循环并等待其结束，然后依次关闭采集器和 Publisher（错误合并返回）
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.log.Info("shutting down orchestrator")
	var errs []error
	if o.cancel != nil {
		o.cancel()
		select {
		case <-o.done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("wait for cycle: %w", ctx.Err()))
		}
	}
	o.setState(StateStopped)

	for _, c := range o.snapshot() {
		if err := c.Close(); err != nil {
			o.log.Error("failed to close collector", zap.String("collector", c.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("close collector %s: %w", c.Name(), err))
		}
	}
	if err := o.pub.Close(); err != nil {
		o.log.Error("failed to close publisher", zap.Error(err))
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	return errors.Join(errs...)
}
