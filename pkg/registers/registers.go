// Package registers wires configuration into the running service: the
// self-metrics registry, the enabled collectors, the publisher and the
// orchestrator that drives them.
package registers

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/collector"
	"github.com/dcn-collector/pkg/config"
	"github.com/dcn-collector/pkg/metrics"
	"github.com/dcn-collector/pkg/orchestrator"
	"github.com/dcn-collector/pkg/publisher"
)

// ErrNoCollectors 没有任何采集器被启用
var ErrNoCollectors = errors.New("no collectors enabled; check the collectors section of the config")

// Module 一条采集器注册项：开关 + 名称 + 构造函数
type Module struct {
	Enabled bool
	Name    string
	NewFunc func() (collector.Collector, error)
}

// Container 服务运行所需的全部组件
type Container struct {
	Registry     metrics.Registers
	Metrics      *metrics.AgentMetrics
	Publisher    publisher.Publisher
	Orchestrator *orchestrator.Orchestrator
}

// Modules 采集器注册表，顺序即 fan-in 顺序。
// 新增采集器只需在此追加一条。
func Modules(cfg *config.Config, m *metrics.AgentMetrics, log *zap.Logger) []Module {
	opts := []collector.Option{
		collector.WithLogger(log),
		collector.WithSubqueryErrors(m.SubqueryErrorsTotal),
	}
	return []Module{
		{
			Enabled: cfg.Collectors.Ontap.Enabled,
			Name:    collector.NameStorageCluster,
			NewFunc: func() (collector.Collector, error) {
				return collector.NewStorageClusterCollector(cfg.Collectors.Ontap, nil, opts...)
			},
		},
		{
			Enabled: cfg.Collectors.StorageGrid.Enabled,
			Name:    collector.NameObjectGrid,
			NewFunc: func() (collector.Collector, error) {
				return collector.NewObjectGridCollector(cfg.Collectors.StorageGrid, nil, opts...)
			},
		},
		{
			Enabled: cfg.Collectors.Generic.Enabled,
			Name:    collector.NameGeneric,
			NewFunc: func() (collector.Collector, error) {
				return collector.NewGenericCollector(cfg.Collectors.Generic, opts...)
			},
		},
	}
}

// RegisterCollectors 按注册表构造启用的采集器；任一构造失败时关闭已构造的并返回错误
func RegisterCollectors(modules []Module, log *zap.Logger) ([]collector.Collector, error) {
	var registered []collector.Collector
	closeAll := func() {
		for _, c := range registered {
			_ = c.Close()
		}
	}
	for _, mod := range modules {
		if !mod.Enabled {
			log.Debug("collector disabled", zap.String("name", mod.Name))
			continue
		}
		c, err := mod.NewFunc()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("build collector %s: %w", mod.Name, err)
		}
		registered = append(registered, c)
		log.Debug("registered collector", zap.String("name", mod.Name))
	}
	if len(registered) == 0 {
		return nil, ErrNoCollectors
	}

	names := make([]string, 0, len(registered))
	for _, c := range registered {
		names = append(names, c.Name())
	}
	log.Info("enabled collectors registered", zap.Strings("collectors", names))
	return registered, nil
}

// Build 组装服务：registry → 自监控指标 → 采集器 → Kafka publisher → orchestrator
func Build(cfg *config.Config, log *zap.Logger) (*Container, error) {
	return build(cfg, log, func(kc config.KafkaConfig, m *metrics.AgentMetrics, l *zap.Logger) (publisher.Publisher, error) {
		return publisher.NewKafkaPublisher(kc, l, publisher.WithSkippedCounter(m.SkippedRecordsTotal))
	})
}

type publisherFunc func(config.KafkaConfig, *metrics.AgentMetrics, *zap.Logger) (publisher.Publisher, error)

func build(cfg *config.Config, log *zap.Logger, newPublisher publisherFunc) (*Container, error) {
	if log == nil {
		log = zap.NewNop()
	}
	reg := metrics.NewPromRegistry(true)
	m := metrics.NewAgentMetrics(metrics.NewMetricFactory(reg))

	collectors, err := RegisterCollectors(Modules(cfg, m, log), log)
	if err != nil {
		return nil, err
	}
	closeCollectors := func() {
		for _, c := range collectors {
			_ = c.Close()
		}
	}

	pub, err := newPublisher(cfg.Kafka, m, log)
	if err != nil {
		closeCollectors()
		return nil, fmt.Errorf("build publisher: %w", err)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Cadence:         cfg.CadenceDuration(),
		Topic:           cfg.Kafka.Topic,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, collectors, pub, m, log)
	if err != nil {
		closeCollectors()
		_ = pub.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	return &Container{
		Registry:     reg,
		Metrics:      m,
		Publisher:    pub,
		Orchestrator: orch,
	}, nil
}
