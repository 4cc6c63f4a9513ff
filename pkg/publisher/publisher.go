// Package publisher delivers a cycle's batch of metrics to the downstream broker.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/dcn-collector/pkg/collector"
)

var (
	// ErrEmptyTopic 未指定 topic
	ErrEmptyTopic = errors.New("publisher: empty topic")
	// ErrClosed Close 之后再调用 Send
	ErrClosed = errors.New("publisher: closed")
)

// Publisher 发布一个周期的批次；Send 在所有记录被确认或 flush 超时后返回
type Publisher interface {
	Send(ctx context.Context, topic string, metrics []collector.Metric) error
	Close() error
}

// PublishError reports a batch the broker did not fully acknowledge.
// The whole batch counts as dropped.
type PublishError struct {
	Topic  string
	Total  int
	Failed int
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %d/%d records to %s failed: %v", e.Failed, e.Total, e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
