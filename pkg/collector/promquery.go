package collector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// vectorSample is one series of an instant-vector query result.
type vectorSample struct {
	labels map[string]string
	value  float64
}

// vectorResponse 兼容 Prometheus HTTP API /api/v1/query 的 instant vector 响应
type vectorResponse struct {
	Status    string `json:"status"`
	ErrorType string `json:"errorType"`
	Error     string `json:"error"`
	Data      struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Metric map[string]string `json:"metric"`
			Value  [2]any            `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// queryVector runs an instant query at path and returns its samples.
func queryVector(ctx context.Context, rest *restClient, path, query string) ([]vectorSample, error) {
	var resp vectorResponse
	if err := rest.getJSON(ctx, path, url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("query %q failed: %s: %s", query, resp.ErrorType, resp.Error)
	}
	if resp.Data.ResultType != "vector" {
		return nil, fmt.Errorf("query %q: unexpected result type %q", query, resp.Data.ResultType)
	}
	out := make([]vectorSample, 0, len(resp.Data.Result))
	for _, r := range resp.Data.Result {
		raw, ok := r.Value[1].(string)
		if !ok {
			return nil, fmt.Errorf("query %q: malformed sample value %v", query, r.Value[1])
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", query, err)
		}
		labels := make(map[string]string, len(r.Metric))
		for k, lv := range r.Metric {
			if k == "__name__" {
				continue
			}
			labels[k] = lv
		}
		out = append(out, vectorSample{labels: labels, value: v})
	}
	return out, nil
}
