package publisher

import (
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/dcn-collector/pkg/collector"
)

// HeaderCollector carries the producing collector name alongside the record.
const HeaderCollector = "collector"

// EncodeRecord 每个指标独立序列化为一条记录，key = 指标名（同一 series 路由到同一分区）
func EncodeRecord(topic string, m collector.Metric) (kafka.Message, error) {
	value, err := json.Marshal(m)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", m.Key(), err)
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(m.Name()),
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderCollector, Value: []byte(m.Collector())}},
	}, nil
}

// DecodeRecord is the consumer side of EncodeRecord.
func DecodeRecord(msg kafka.Message) (collector.Metric, error) {
	var m collector.Metric
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return collector.Metric{}, fmt.Errorf("decode record at offset %d: %w", msg.Offset, err)
	}
	return m, nil
}
