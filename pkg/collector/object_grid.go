package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/config"
)

// NameObjectGrid is the registration name of the object storage grid collector.
const NameObjectGrid = "storagegrid"

// S3Operations operation name (GET/PUT/DELETE/LIST) -> operation count.
type S3Operations map[string]float64

// GridCapacity total/used storage of a grid, in bytes.
type GridCapacity struct {
	Total float64
	Used  float64
}

// GridClient is the thin adapter contract to one object storage grid admin API.
type GridClient interface {
	S3Operations(ctx context.Context) (S3Operations, error)
	Capacity(ctx context.Context) (GridCapacity, error)
	Close() error
}

// GridClientFunc builds the client for one grid target.
type GridClientFunc func(cfg config.StorageGridConfig, target config.GridTarget) (GridClient, error)

// s3Operations 固定输出顺序
var s3Operations = []string{"GET", "PUT", "DELETE", "LIST"}

type gridTarget struct {
	name   string
	client GridClient
}

// ObjectGridCollector 对象存储网格采集器（s3 operations/capacity）
type ObjectGridCollector struct {
	base
	grids []gridTarget
}

// NewObjectGridCollector builds one client per configured grid.
// A nil newClient uses the REST adapter.
func NewObjectGridCollector(cfg config.StorageGridConfig, newClient GridClientFunc, opts ...Option) (*ObjectGridCollector, error) {
	if newClient == nil {
		newClient = NewRESTGridClient
	}
	c := &ObjectGridCollector{base: newBase(NameObjectGrid, cfg.CollectorCommon, opts...)}
	for _, t := range cfg.Grids {
		client, err := newClient(cfg, t)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("storagegrid grid %s: %w", t.Name, err)
		}
		c.grids = append(c.grids, gridTarget{name: t.Name, client: client})
	}
	return c, nil
}

func (c *ObjectGridCollector) Init(_ context.Context) error {
	if len(c.grids) == 0 {
		return errors.New("storagegrid: no grids configured")
	}
	c.log.Info("storagegrid collector initialized", zap.Int("grids", len(c.grids)))
	return nil
}

func (c *ObjectGridCollector) Collect(ctx context.Context) ([]Metric, error) {
	queries := make([]subquery, 0, len(c.grids)*2)
	for _, g := range c.grids {
		queries = append(queries,
			subquery{name: "s3_operations", target: g.name, run: c.s3(g)},
			subquery{name: "capacity", target: g.name, run: c.capacity(g)},
		)
	}
	return c.gather(ctx, queries)
}

func (c *ObjectGridCollector) s3(g gridTarget) func(context.Context) ([]Metric, error) {
	return func(ctx context.Context) ([]Metric, error) {
		ops, err := g.client.S3Operations(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Metric, 0, len(s3Operations))
		for _, op := range s3Operations {
			v, ok := ops[op]
			if !ok {
				continue
			}
			out = append(out, c.metric("dcn_storagegrid_s3_operations_total", v,
				map[string]string{"grid": g.name, "operation": op}))
		}
		return out, nil
	}
}

func (c *ObjectGridCollector) capacity(g gridTarget) func(context.Context) ([]Metric, error) {
	return func(ctx context.Context) ([]Metric, error) {
		capy, err := g.client.Capacity(ctx)
		if err != nil {
			return nil, err
		}
		return []Metric{
			c.metric("dcn_storagegrid_capacity_bytes", capy.Total, map[string]string{"grid": g.name, "type": "total"}),
			c.metric("dcn_storagegrid_capacity_bytes", capy.Used, map[string]string{"grid": g.name, "type": "used"}),
		}, nil
	}
}

func (c *ObjectGridCollector) Close() error {
	var errs []error
	for _, g := range c.grids {
		if err := g.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close grid %s: %w", g.name, err))
		}
	}
	return errors.Join(errs...)
}

const gridMetricQueryPath = "/api/v4/grid/metric-query"

const (
	queryS3Operations  = `sum by (operation) (storagegrid_s3_operations_total)`
	queryCapacityTotal = `sum(storagegrid_storage_utilization_total_space_bytes)`
	queryCapacityUsed  = `sum(storagegrid_storage_utilization_data_bytes)`
)

// restGridClient queries the grid admin metric-query endpoint (bearer token).
type restGridClient struct {
	rest *restClient
}

// NewRESTGridClient is the default GridClientFunc.
func NewRESTGridClient(cfg config.StorageGridConfig, target config.GridTarget) (GridClient, error) {
	endpoint := target.Endpoint
	if endpoint == "" {
		endpoint = cfg.APIEndpoint
	}
	token := cfg.Token
	rest, err := newRESTClient(endpoint, cfg.InsecureSkipVerify, cfg.TimeoutDuration(), func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	})
	if err != nil {
		return nil, err
	}
	return &restGridClient{rest: rest}, nil
}

func (c *restGridClient) S3Operations(ctx context.Context) (S3Operations, error) {
	samples, err := queryVector(ctx, c.rest, gridMetricQueryPath, queryS3Operations)
	if err != nil {
		return nil, err
	}
	out := make(S3Operations, len(samples))
	for _, s := range samples {
		if op := s.labels["operation"]; op != "" {
			out[op] = s.value
		}
	}
	return out, nil
}

func (c *restGridClient) Capacity(ctx context.Context) (GridCapacity, error) {
	total, err := c.scalar(ctx, queryCapacityTotal)
	if err != nil {
		return GridCapacity{}, err
	}
	used, err := c.scalar(ctx, queryCapacityUsed)
	if err != nil {
		return GridCapacity{}, err
	}
	return GridCapacity{Total: total, Used: used}, nil
}

func (c *restGridClient) scalar(ctx context.Context, query string) (float64, error) {
	samples, err := queryVector(ctx, c.rest, gridMetricQueryPath, query)
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return 0, fmt.Errorf("query %q returned no samples", query)
	}
	return samples[0].value, nil
}

func (c *restGridClient) Close() error {
	c.rest.close()
	return nil
}
