package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dcn-collector/pkg/config"
)

type mockClusterClient struct {
	mock.Mock
}

func (m *mockClusterClient) NodeIOPS(ctx context.Context) ([]NodeIOPS, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]NodeIOPS)
	return v, args.Error(1)
}

func (m *mockClusterClient) NodeLatency(ctx context.Context) ([]NodeLatency, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]NodeLatency)
	return v, args.Error(1)
}

func (m *mockClusterClient) NodeThroughput(ctx context.Context) ([]NodeThroughput, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]NodeThroughput)
	return v, args.Error(1)
}

func (m *mockClusterClient) AggregateCapacity(ctx context.Context) ([]AggregateCapacity, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]AggregateCapacity)
	return v, args.Error(1)
}

func (m *mockClusterClient) Close() error {
	return m.Called().Error(0)
}

func healthyCluster() *mockClusterClient {
	m := &mockClusterClient{}
	m.On("NodeIOPS", mock.Anything).Return([]NodeIOPS{{Node: "node-01", Read: 1500, Write: 800}}, nil)
	m.On("NodeLatency", mock.Anything).Return([]NodeLatency{{Node: "node-01", Read: 2.5, Write: 3.2}}, nil)
	m.On("NodeThroughput", mock.Anything).Return([]NodeThroughput{{Node: "node-01", Total: 104857600}}, nil)
	m.On("AggregateCapacity", mock.Anything).Return([]AggregateCapacity{{Aggregate: "aggr1", Total: 100, Used: 50}}, nil)
	m.On("Close").Return(nil)
	return m
}

func ontapConfig(clusters ...string) config.OntapConfig {
	cfg := config.NewDefaultConfig().Collectors.Ontap
	cfg.Enabled = true
	for _, c := range clusters {
		cfg.Clusters = append(cfg.Clusters, config.ClusterTarget{Name: c})
	}
	return cfg
}

func clientsByName(clients map[string]ClusterClient) ClusterClientFunc {
	return func(_ config.OntapConfig, t config.ClusterTarget) (ClusterClient, error) {
		c, ok := clients[t.Name]
		if !ok {
			return nil, errors.New("no client for " + t.Name)
		}
		return c, nil
	}
}

func TestStorageClusterCollect(t *testing.T) {
	c1, c2 := healthyCluster(), healthyCluster()
	c, err := NewStorageClusterCollector(ontapConfig("prod-01", "prod-02"),
		clientsByName(map[string]ClusterClient{"prod-01": c1, "prod-02": c2}), WithClock(fixedClock))
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))

	out, err := c.Collect(context.Background())
	require.NoError(t, err)
	// 每个集群: 2 iops + 2 latency + 1 throughput + 2 capacity
	require.Len(t, out, 14)
	assert.Empty(t, DuplicateKeys(out))

	first := out[0]
	assert.Equal(t, "dcn_storage_iops_total", first.Name())
	assert.Equal(t, map[string]string{"cluster": "prod-01", "node": "node-01", "type": "read"}, first.Labels())
	assert.Equal(t, 1500.0, first.Value())
	assert.Equal(t, NameStorageCluster, first.Collector())
	assert.Equal(t, fixedNow.UnixMilli(), first.Timestamp())

	v, _ := out[7].Label("cluster")
	assert.Equal(t, "prod-02", v)

	require.NoError(t, c.Close())
	c1.AssertExpectations(t)
	c2.AssertExpectations(t)
}

func TestStorageClusterPartialFailure(t *testing.T) {
	bad := &mockClusterClient{}
	bad.On("NodeIOPS", mock.Anything).Return(nil, errors.New("503"))
	bad.On("NodeLatency", mock.Anything).Return(nil, errors.New("503"))
	bad.On("NodeThroughput", mock.Anything).Return(nil, errors.New("503"))
	bad.On("AggregateCapacity", mock.Anything).Return([]AggregateCapacity{{Aggregate: "a", Total: 1, Used: 1}}, nil)

	c, err := NewStorageClusterCollector(ontapConfig("bad"), clientsByName(map[string]ClusterClient{"bad": bad}))
	require.NoError(t, err)

	out, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestStorageClusterAllFailed(t *testing.T) {
	bad := &mockClusterClient{}
	for _, m := range []string{"NodeIOPS", "NodeLatency", "NodeThroughput", "AggregateCapacity"} {
		bad.On(m, mock.Anything).Return(nil, errors.New("connection refused"))
	}
	c, err := NewStorageClusterCollector(ontapConfig("bad"), clientsByName(map[string]ClusterClient{"bad": bad}))
	require.NoError(t, err)

	out, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStorageClusterInitWithoutClusters(t *testing.T) {
	c, err := NewStorageClusterCollector(ontapConfig(), nil)
	require.NoError(t, err)
	assert.Error(t, c.Init(context.Background()))
}

func TestStorageClusterConstructorError(t *testing.T) {
	good := healthyCluster()
	_, err := NewStorageClusterCollector(ontapConfig("a", "missing"), clientsByName(map[string]ClusterClient{"a": good}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
	good.AssertCalled(t, "Close")
}

func TestRESTClusterClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "monitor" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/cluster/nodes":
			_, _ = w.Write([]byte(`{"records":[{"name":"node-01","metric":{
				"iops":{"read":1500,"write":800},
				"latency":{"read":2500,"write":3200},
				"throughput":{"total":104857600}}}]}`))
		case "/api/storage/aggregates":
			assert.Equal(t, "name,space.block_storage", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"records":[{"name":"aggr1","space":{"block_storage":{"size":10,"used":5}}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cfg := ontapConfig("c1")
	cfg.APIEndpoint = srv.URL
	cfg.Username, cfg.Password = "monitor", "secret"

	client, err := NewRESTClusterClient(cfg, cfg.Clusters[0])
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	iops, err := client.NodeIOPS(ctx)
	require.NoError(t, err)
	assert.Equal(t, []NodeIOPS{{Node: "node-01", Read: 1500, Write: 800}}, iops)

	lat, err := client.NodeLatency(ctx)
	require.NoError(t, err)
	assert.Equal(t, []NodeLatency{{Node: "node-01", Read: 2.5, Write: 3.2}}, lat)

	tp, err := client.NodeThroughput(ctx)
	require.NoError(t, err)
	assert.Equal(t, 104857600.0, tp[0].Total)

	capy, err := client.AggregateCapacity(ctx)
	require.NoError(t, err)
	assert.Equal(t, []AggregateCapacity{{Aggregate: "aggr1", Total: 10, Used: 5}}, capy)

	cfg.Password = "wrong"
	unauth, err := NewRESTClusterClient(cfg, cfg.Clusters[0])
	require.NoError(t, err)
	_, err = unauth.NodeIOPS(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRESTClusterClientTargetEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	cfg := ontapConfig()
	cfg.APIEndpoint = "https://unreachable.invalid"
	client, err := NewRESTClusterClient(cfg, config.ClusterTarget{Name: "c", Endpoint: srv.URL})
	require.NoError(t, err)
	nodes, err := client.NodeIOPS(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestNewRESTClientRejectsBadEndpoint(t *testing.T) {
	_, err := newRESTClient("not-a-url", false, 0, nil)
	assert.Error(t, err)
}
