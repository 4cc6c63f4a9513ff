package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dcn-collector/pkg/config"
)

// CPUTimes 存储CPU各模式的累计时间
type CPUTimes struct {
	User    float64
	Nice    float64
	System  float64
	Idle    float64
	Iowait  float64
	Irq     float64
	Softirq float64
	Steal   float64
}

func (t CPUTimes) total() float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
}

// CPUModeUsage 计算两次采样之间各模式使用率（百分比）和总使用率（100% - 空闲率）；
// 总时间未变化时 ok=false
func CPUModeUsage(prev, cur CPUTimes) (modes map[string]float64, usage float64, ok bool) {
	deltaTotal := cur.total() - prev.total()
	if deltaTotal <= 0 {
		return nil, 0, false
	}
	deltas := map[string]float64{
		"user":    cur.User - prev.User,
		"nice":    cur.Nice - prev.Nice,
		"system":  cur.System - prev.System,
		"idle":    cur.Idle - prev.Idle,
		"iowait":  cur.Iowait - prev.Iowait,
		"irq":     cur.Irq - prev.Irq,
		"softirq": cur.Softirq - prev.Softirq,
		"steal":   cur.Steal - prev.Steal,
	}
	modes = make(map[string]float64, len(deltas))
	for mode, d := range deltas {
		modes[mode] = d / deltaTotal * 100
	}
	return modes, (deltaTotal - deltas["idle"]) / deltaTotal * 100, true
}

var cpuModes = []string{"user", "nice", "system", "idle", "iowait", "irq", "softirq", "steal"}

// hostSource 本机 CPU/内存/负载（gopsutil）
type hostSource struct {
	name string

	times  func(ctx context.Context) (CPUTimes, error)
	memory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	avg    func(ctx context.Context) (*load.AvgStat, error)

	mu        sync.Mutex
	lastTimes *CPUTimes // 上一次的CPU时间，首次采集只记录不计算
}

func newHostSource(cfg config.SourceConfig, _ time.Duration) (Source, error) {
	return &hostSource{
		name:   cfg.Name,
		times:  gopsutilTimes,
		memory: mem.VirtualMemoryWithContext,
		avg:    load.AvgWithContext,
	}, nil
}

func gopsutilTimes(ctx context.Context) (CPUTimes, error) {
	stats, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUTimes{}, err
	}
	if len(stats) == 0 {
		return CPUTimes{}, errors.New("no cpu times reported")
	}
	s := stats[0]
	return CPUTimes{
		User: s.User, Nice: s.Nice, System: s.System, Idle: s.Idle,
		Iowait: s.Iowait, Irq: s.Irq, Softirq: s.Softirq, Steal: s.Steal,
	}, nil
}

func (s *hostSource) Name() string { return s.name }
func (s *hostSource) Type() string { return "host" }
func (s *hostSource) Close() error { return nil }

// Collect 各部分独立；全部失败才返回错误
func (s *hostSource) Collect(ctx context.Context) ([]Sample, error) {
	var (
		out  []Sample
		errs []error
	)

	cpuSamples, err := s.collectCPU(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	}
	out = append(out, cpuSamples...)

	if vm, err := s.memory(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		out = append(out,
			Sample{Name: "dcn_host_memory_bytes", Value: float64(vm.Total), Labels: map[string]string{"type": "total"}},
			Sample{Name: "dcn_host_memory_bytes", Value: float64(vm.Used), Labels: map[string]string{"type": "used"}},
			Sample{Name: "dcn_host_memory_bytes", Value: float64(vm.Available), Labels: map[string]string{"type": "available"}},
			Sample{Name: "dcn_host_memory_used_percent", Value: vm.UsedPercent},
		)
	}

	if avg, err := s.avg(ctx); err != nil {
		errs = append(errs, fmt.Errorf("load: %w", err))
	} else {
		out = append(out,
			Sample{Name: "dcn_host_load_average", Value: avg.Load1, Labels: map[string]string{"period": "1m"}},
			Sample{Name: "dcn_host_load_average", Value: avg.Load5, Labels: map[string]string{"period": "5m"}},
			Sample{Name: "dcn_host_load_average", Value: avg.Load15, Labels: map[string]string{"period": "15m"}},
		)
	}

	if len(errs) == 3 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (s *hostSource) collectCPU(ctx context.Context) ([]Sample, error) {
	cur, err := s.times(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	prev := s.lastTimes
	s.lastTimes = &cur
	s.mu.Unlock()

	if prev == nil {
		return nil, nil
	}
	modes, usage, ok := CPUModeUsage(*prev, cur)
	if !ok {
		return nil, nil
	}
	out := make([]Sample, 0, len(cpuModes)+1)
	out = append(out, Sample{Name: "dcn_host_cpu_usage_percent", Value: usage})
	for _, m := range cpuModes {
		out = append(out, Sample{Name: "dcn_host_cpu_mode_percent", Value: modes[m], Labels: map[string]string{"mode": m}})
	}
	return out, nil
}
