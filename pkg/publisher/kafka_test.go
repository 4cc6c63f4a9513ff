package publisher

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/collector"
	"github.com/dcn-collector/pkg/config"
)

type fakeWriter struct {
	mu     sync.Mutex
	calls  [][]kafka.Message
	err    error
	block  bool
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	block, err := f.block, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func batch() []collector.Metric {
	return []collector.Metric{
		collector.NewMetric("ontap", "dcn_storage_iops_total", 1500, map[string]string{"node": "n1"}, collector.WithTimestamp(1)),
		collector.NewMetric("ontap", "dcn_storage_iops_total", 800, map[string]string{"node": "n2"}, collector.WithTimestamp(1)),
		collector.NewMetric("generic", "dcn_x_metric", 100, nil, collector.WithTimestamp(1)),
	}
}

func TestSendWritesOneRecordPerMetric(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, time.Second, zap.NewNop())

	require.NoError(t, p.Send(context.Background(), "dcn-metrics", batch()))
	require.Len(t, w.calls, 1)
	msgs := w.calls[0]
	require.Len(t, msgs, 3)

	assert.Equal(t, "dcn-metrics", msgs[0].Topic)
	assert.Equal(t, "dcn_storage_iops_total", string(msgs[0].Key))
	assert.Equal(t, "dcn_x_metric", string(msgs[2].Key))
	assert.Equal(t, []kafka.Header{{Key: HeaderCollector, Value: []byte("generic")}}, msgs[2].Headers)
	assert.JSONEq(t, `{"name":"dcn_storage_iops_total","value":800,"labels":{"node":"n2"},"timestamp":1,"collector":"ontap"}`,
		string(msgs[1].Value))
}

func TestSendEmptyBatchIsNoop(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, time.Second, zap.NewNop())

	assert.NoError(t, p.Send(context.Background(), "t", nil))
	assert.Empty(t, w.calls)
}

func TestSendEmptyTopic(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{}, time.Second, zap.NewNop())
	assert.ErrorIs(t, p.Send(context.Background(), "", batch()), ErrEmptyTopic)
}

func TestSendBrokerFailure(t *testing.T) {
	boom := errors.New("leader not available")
	p := newKafkaPublisher(&fakeWriter{err: boom}, time.Second, zap.NewNop())

	err := p.Send(context.Background(), "t", batch())
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Total)
	assert.Equal(t, 3, perr.Failed)
	assert.ErrorIs(t, err, boom)
}

func TestSendPartialWriteErrors(t *testing.T) {
	werrs := kafka.WriteErrors{nil, errors.New("msg too large"), nil}
	p := newKafkaPublisher(&fakeWriter{err: werrs}, time.Second, zap.NewNop())

	err := p.Send(context.Background(), "t", batch())
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Failed)
	assert.Contains(t, perr.Error(), "1/3")
}

func TestSendSkipsUnencodableRecord(t *testing.T) {
	w := &fakeWriter{}
	skipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "skipped"})
	p := newKafkaPublisher(w, time.Second, zap.NewNop(), WithSkippedCounter(skipped))

	ms := append(batch(), collector.NewMetric("generic", "dcn_r_metric", math.NaN(), nil))
	require.NoError(t, p.Send(context.Background(), "dcn-metrics", ms))

	require.Len(t, w.calls, 1)
	assert.Len(t, w.calls[0], 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(skipped))
}

func TestSendAllUnencodable(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, time.Second, zap.NewNop())

	ms := []collector.Metric{
		collector.NewMetric("generic", "a", math.Inf(1), nil),
		collector.NewMetric("generic", "b", math.NaN(), nil),
	}
	err := p.Send(context.Background(), "t", ms)
	var perr *PublishError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Failed)
	assert.Empty(t, w.calls)
}

func TestSendFlushTimeout(t *testing.T) {
	p := newKafkaPublisher(&fakeWriter{block: true}, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	err := p.Send(context.Background(), "t", batch())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCloseIsIdempotent(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, time.Second, zap.NewNop())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Send(context.Background(), "t", batch()), ErrClosed)
}

func TestRecordRoundTrip(t *testing.T) {
	m := batch()[0]
	msg, err := EncodeRecord("t", m)
	require.NoError(t, err)

	back, err := DecodeRecord(msg)
	require.NoError(t, err)
	assert.Equal(t, m.Key(), back.Key())
	assert.Equal(t, m.Value(), back.Value())
	assert.Equal(t, m.Collector(), back.Collector())

	_, err = DecodeRecord(kafka.Message{Value: []byte("{")})
	assert.Error(t, err)
}

func TestNewKafkaPublisherFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Kafka
	p, err := NewKafkaPublisher(cfg, nil)
	require.NoError(t, err)

	w, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, w.BatchTimeout)
	assert.EqualValues(t, 16384, w.BatchBytes)
	assert.Equal(t, kafka.Gzip, w.Compression)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, w.Balancer)
	require.NoError(t, p.Close())

	cfg.Compression = "brotli"
	_, err = NewKafkaPublisher(cfg, nil)
	assert.Error(t, err)
}

func TestParseRequiredAcks(t *testing.T) {
	acks, err := ParseRequiredAcks("one")
	require.NoError(t, err)
	assert.Equal(t, kafka.RequireOne, acks)
	_, err = ParseRequiredAcks("most")
	assert.Error(t, err)
}
