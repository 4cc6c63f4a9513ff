package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registers 隔离 Prometheus 的默认实现，便于单测替换
type Registers interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// promRegistry 包裹官方的 *prometheus.Registry
type promRegistry struct {
	*prometheus.Registry
}

// NewPromRegistry 创建注册器；withRuntime 时附带 process/go 运行时指标
func NewPromRegistry(withRuntime bool) Registers {
	r := prometheus.NewRegistry()
	if withRuntime {
		r.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return &promRegistry{Registry: r}
}
