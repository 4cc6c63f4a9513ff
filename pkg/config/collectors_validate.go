package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	if !h.Enable {
		return nil
	}
	// 	用net包解析地址，验证格式合法性
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate Kafka 发布配置校验
func (k *KafkaConfig) Validate() error {
	if err := valid.Struct(k); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, b := range k.Brokers {
		b = strings.TrimSpace(b)
		if b == "" {
			return errors.New("kafka.brokers cannot contain empty string")
		}
		if seen[b] {
			return fmt.Errorf("kafka.brokers duplicated entry: %q", b)
		}
		seen[b] = true
	}
	if strings.ContainsAny(k.Topic, " \t\r\n/") {
		return fmt.Errorf("kafka.topic %q contains illegal characters", k.Topic)
	}
	return nil
}

// Validate 校验至少启用一个采集器，否则没有意义
func (c *CollectorsConfig) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if !c.Ontap.Enabled && !c.StorageGrid.Enabled && !c.Generic.Enabled {
		return errors.New("at least one collector must be enabled (ontap/storagegrid/generic)")
	}
	if err := c.Ontap.Validate(); err != nil {
		return err
	}
	if err := c.StorageGrid.Validate(); err != nil {
		return err
	}
	return c.Generic.Validate()
}

// Validate 未启用时不校验
func (o *OntapConfig) Validate() error {
	if !o.Enabled {
		return nil
	}
	if err := validEndpoint("collectors.ontap.api_endpoint", o.APIEndpoint); err != nil {
		return err
	}
	if len(o.Clusters) == 0 {
		return errors.New("collectors.ontap.clusters must list at least one cluster")
	}
	seen := map[string]bool{}
	for _, cl := range o.Clusters {
		if seen[cl.Name] {
			return fmt.Errorf("collectors.ontap.clusters duplicated name: %q", cl.Name)
		}
		seen[cl.Name] = true
		if cl.Endpoint != "" {
			if err := validEndpoint("collectors.ontap.clusters."+cl.Name+".endpoint", cl.Endpoint); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate 未启用时不校验
func (s *StorageGridConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if err := validEndpoint("collectors.storagegrid.api_endpoint", s.APIEndpoint); err != nil {
		return err
	}
	if len(s.Grids) == 0 {
		return errors.New("collectors.storagegrid.grids must list at least one grid")
	}
	seen := map[string]bool{}
	for _, g := range s.Grids {
		if seen[g.Name] {
			return fmt.Errorf("collectors.storagegrid.grids duplicated name: %q", g.Name)
		}
		seen[g.Name] = true
		if g.Endpoint != "" {
			if err := validEndpoint("collectors.storagegrid.grids."+g.Name+".endpoint", g.Endpoint); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate 数据源名称唯一；prometheus 数据源必须配置 url 和 query
func (g *GenericConfig) Validate() error {
	if !g.Enabled {
		return nil
	}
	if len(g.Sources) == 0 {
		return errors.New("collectors.generic.sources must list at least one source")
	}
	seen := map[string]bool{}
	for _, src := range g.Sources {
		if seen[src.Name] {
			return fmt.Errorf("collectors.generic.sources duplicated name: %q", src.Name)
		}
		seen[src.Name] = true
		if strings.ContainsAny(src.Name, " \t{}\"=,") {
			return fmt.Errorf("collectors.generic.sources name %q contains illegal characters", src.Name)
		}
		if src.Type == "prometheus" {
			if src.URL == "" || src.Query == "" {
				return fmt.Errorf("collectors.generic.sources %q: prometheus source requires url and query", src.Name)
			}
		}
	}
	return nil
}

func validEndpoint(field, endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) url, got %s", field, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host: %s", field, endpoint)
	}
	return nil
}
