package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/config"
)

// NameStorageCluster is the registration name of the storage cluster collector.
const NameStorageCluster = "ontap"

// NodeIOPS read/write operations per second of one node.
type NodeIOPS struct {
	Node  string
	Read  float64
	Write float64
}

// NodeLatency average read/write latency of one node, in milliseconds.
type NodeLatency struct {
	Node  string
	Read  float64
	Write float64
}

// NodeThroughput total bytes per second of one node.
type NodeThroughput struct {
	Node  string
	Total float64
}

// AggregateCapacity block storage of one aggregate, in bytes.
type AggregateCapacity struct {
	Aggregate string
	Total     float64
	Used      float64
}

// ClusterClient is the thin adapter contract to one storage cluster management API.
type ClusterClient interface {
	NodeIOPS(ctx context.Context) ([]NodeIOPS, error)
	NodeLatency(ctx context.Context) ([]NodeLatency, error)
	NodeThroughput(ctx context.Context) ([]NodeThroughput, error)
	AggregateCapacity(ctx context.Context) ([]AggregateCapacity, error)
	Close() error
}

// ClusterClientFunc builds the client for one cluster target.
type ClusterClientFunc func(cfg config.OntapConfig, target config.ClusterTarget) (ClusterClient, error)

type clusterTarget struct {
	name   string
	client ClusterClient
}

// StorageClusterCollector 存储集群采集器（iops/latency/throughput/capacity）
type StorageClusterCollector struct {
	base
	clusters []clusterTarget
}

// NewStorageClusterCollector builds one client per configured cluster.
// A nil newClient uses the REST adapter.
func NewStorageClusterCollector(cfg config.OntapConfig, newClient ClusterClientFunc, opts ...Option) (*StorageClusterCollector, error) {
	if newClient == nil {
		newClient = NewRESTClusterClient
	}
	c := &StorageClusterCollector{base: newBase(NameStorageCluster, cfg.CollectorCommon, opts...)}
	for _, t := range cfg.Clusters {
		client, err := newClient(cfg, t)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("ontap cluster %s: %w", t.Name, err)
		}
		c.clusters = append(c.clusters, clusterTarget{name: t.Name, client: client})
	}
	return c, nil
}

// Init 预检查：至少一个集群
func (c *StorageClusterCollector) Init(_ context.Context) error {
	if len(c.clusters) == 0 {
		return errors.New("ontap: no clusters configured")
	}
	c.log.Info("ontap collector initialized", zap.Int("clusters", len(c.clusters)))
	return nil
}

// Collect 每个集群 4 个子查询，按集群顺序执行
func (c *StorageClusterCollector) Collect(ctx context.Context) ([]Metric, error) {
	queries := make([]subquery, 0, len(c.clusters)*4)
	for _, t := range c.clusters {
		queries = append(queries,
			subquery{name: "iops", target: t.name, run: c.iops(t)},
			subquery{name: "latency", target: t.name, run: c.latency(t)},
			subquery{name: "throughput", target: t.name, run: c.throughput(t)},
			subquery{name: "capacity", target: t.name, run: c.capacity(t)},
		)
	}
	return c.gather(ctx, queries)
}

func (c *StorageClusterCollector) iops(t clusterTarget) func(context.Context) ([]Metric, error) {
	return func(ctx context.Context) ([]Metric, error) {
		nodes, err := t.client.NodeIOPS(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Metric, 0, len(nodes)*2)
		for _, n := range nodes {
			out = append(out,
				c.metric("dcn_storage_iops_total", n.Read, map[string]string{"cluster": t.name, "node": n.Node, "type": "read"}),
				c.metric("dcn_storage_iops_total", n.Write, map[string]string{"cluster": t.name, "node": n.Node, "type": "write"}),
			)
		}
		return out, nil
	}
}

func (c *StorageClusterCollector) latency(t clusterTarget) func(context.Context) ([]Metric, error) {
	return func(ctx context.Context) ([]Metric, error) {
		nodes, err := t.client.NodeLatency(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Metric, 0, len(nodes)*2)
		for _, n := range nodes {
			out = append(out,
				c.metric("dcn_storage_latency_milliseconds", n.Read, map[string]string{"cluster": t.name, "node": n.Node, "operation": "read"}),
				c.metric("dcn_storage_latency_milliseconds", n.Write, map[string]string{"cluster": t.name, "node": n.Node, "operation": "write"}),
			)
		}
		return out, nil
	}
}

func (c *StorageClusterCollector) throughput(t clusterTarget) func(context.Context) ([]Metric, error) {
	return func(ctx context.Context) ([]Metric, error) {
		nodes, err := t.client.NodeThroughput(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Metric, 0, len(nodes))
		for _, n := range nodes {
			out = append(out, c.metric("dcn_storage_throughput_bytes_per_second", n.Total,
				map[string]string{"cluster": t.name, "node": n.Node}))
		}
		return out, nil
	}
}

func (c *StorageClusterCollector) capacity(t clusterTarget) func(context.Context) ([]Metric, error) {
	return func(ctx context.Context) ([]Metric, error) {
		aggrs, err := t.client.AggregateCapacity(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Metric, 0, len(aggrs)*2)
		for _, a := range aggrs {
			out = append(out,
				c.metric("dcn_storage_capacity_bytes", a.Total, map[string]string{"cluster": t.name, "aggregate": a.Aggregate, "type": "total"}),
				c.metric("dcn_storage_capacity_bytes", a.Used, map[string]string{"cluster": t.name, "aggregate": a.Aggregate, "type": "used"}),
			)
		}
		return out, nil
	}
}

// Close 释放所有集群连接
func (c *StorageClusterCollector) Close() error {
	var errs []error
	for _, t := range c.clusters {
		if err := t.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cluster %s: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}

// restClusterClient talks to the cluster REST API (/api/cluster/nodes, /api/storage/aggregates).
type restClusterClient struct {
	rest *restClient
}

// NewRESTClusterClient is the default ClusterClientFunc (HTTP basic auth).
func NewRESTClusterClient(cfg config.OntapConfig, target config.ClusterTarget) (ClusterClient, error) {
	endpoint := target.Endpoint
	if endpoint == "" {
		endpoint = cfg.APIEndpoint
	}
	user, pass := cfg.Username, cfg.Password
	rest, err := newRESTClient(endpoint, cfg.InsecureSkipVerify, cfg.TimeoutDuration(), func(r *http.Request) {
		if user != "" {
			r.SetBasicAuth(user, pass)
		}
	})
	if err != nil {
		return nil, err
	}
	return &restClusterClient{rest: rest}, nil
}

type nodeMetricRecord struct {
	Name   string `json:"name"`
	Metric struct {
		IOPS struct {
			Read  float64 `json:"read"`
			Write float64 `json:"write"`
		} `json:"iops"`
		// microseconds
		Latency struct {
			Read  float64 `json:"read"`
			Write float64 `json:"write"`
		} `json:"latency"`
		Throughput struct {
			Total float64 `json:"total"`
		} `json:"throughput"`
	} `json:"metric"`
}

type aggregateRecord struct {
	Name  string `json:"name"`
	Space struct {
		BlockStorage struct {
			Size float64 `json:"size"`
			Used float64 `json:"used"`
		} `json:"block_storage"`
	} `json:"space"`
}

type recordsResponse[T any] struct {
	Records []T `json:"records"`
}

func (c *restClusterClient) nodes(ctx context.Context, fields string) ([]nodeMetricRecord, error) {
	var resp recordsResponse[nodeMetricRecord]
	err := c.rest.getJSON(ctx, "/api/cluster/nodes", url.Values{"fields": {"name," + fields}}, &resp)
	return resp.Records, err
}

func (c *restClusterClient) NodeIOPS(ctx context.Context) ([]NodeIOPS, error) {
	recs, err := c.nodes(ctx, "metric.iops")
	if err != nil {
		return nil, err
	}
	out := make([]NodeIOPS, 0, len(recs))
	for _, r := range recs {
		out = append(out, NodeIOPS{Node: r.Name, Read: r.Metric.IOPS.Read, Write: r.Metric.IOPS.Write})
	}
	return out, nil
}

func (c *restClusterClient) NodeLatency(ctx context.Context) ([]NodeLatency, error) {
	recs, err := c.nodes(ctx, "metric.latency")
	if err != nil {
		return nil, err
	}
	out := make([]NodeLatency, 0, len(recs))
	for _, r := range recs {
		out = append(out, NodeLatency{
			Node:  r.Name,
			Read:  r.Metric.Latency.Read / 1000,
			Write: r.Metric.Latency.Write / 1000,
		})
	}
	return out, nil
}

func (c *restClusterClient) NodeThroughput(ctx context.Context) ([]NodeThroughput, error) {
	recs, err := c.nodes(ctx, "metric.throughput")
	if err != nil {
		return nil, err
	}
	out := make([]NodeThroughput, 0, len(recs))
	for _, r := range recs {
		out = append(out, NodeThroughput{Node: r.Name, Total: r.Metric.Throughput.Total})
	}
	return out, nil
}

func (c *restClusterClient) AggregateCapacity(ctx context.Context) ([]AggregateCapacity, error) {
	var resp recordsResponse[aggregateRecord]
	if err := c.rest.getJSON(ctx, "/api/storage/aggregates", url.Values{"fields": {"name,space.block_storage"}}, &resp); err != nil {
		return nil, err
	}
	out := make([]AggregateCapacity, 0, len(resp.Records))
	for _, r := range resp.Records {
		out = append(out, AggregateCapacity{
			Aggregate: r.Name,
			Total:     r.Space.BlockStorage.Size,
			Used:      r.Space.BlockStorage.Used,
		})
	}
	return out, nil
}

func (c *restClusterClient) Close() error {
	c.rest.close()
	return nil
}
