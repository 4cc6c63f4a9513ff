package orchestrator

import (
	"encoding/json"
	"time"

	"github.com/dcn-collector/pkg/collector"
)

// Result 单个采集器在一个周期内的结果；Err == nil 表示成功
type Result struct {
	Collector string
	Metrics   []collector.Metric
	Err       *collector.Error
	Duration  time.Duration
}

// CycleReport summarises one cycle. It never holds the batch itself.
type CycleReport struct {
	Seq        uint64
	Started    time.Time
	Elapsed    time.Duration
	Sleep      time.Duration
	Overrun    bool
	Collected  int
	Failed     []string
	Published  bool
	PublishErr string
}

func (r CycleReport) clone() CycleReport {
	if r.Failed != nil {
		r.Failed = append([]string(nil), r.Failed...)
	}
	return r
}

// MarshalJSON 用于 /status，时长输出为可读字符串
func (r CycleReport) MarshalJSON() ([]byte, error) {
	failed := r.Failed
	if failed == nil {
		failed = []string{}
	}
	return json.Marshal(struct {
		Seq        uint64   `json:"seq"`
		Started    string   `json:"started"`
		Elapsed    string   `json:"elapsed"`
		Sleep      string   `json:"sleep"`
		Overrun    bool     `json:"overrun"`
		Collected  int      `json:"collected"`
		Failed     []string `json:"failed"`
		Published  bool     `json:"published"`
		PublishErr string   `json:"publish_error,omitempty"`
	}{
		Seq:        r.Seq,
		Started:    r.Started.Format(time.RFC3339Nano),
		Elapsed:    r.Elapsed.String(),
		Sleep:      r.Sleep.String(),
		Overrun:    r.Overrun,
		Collected:  r.Collected,
		Failed:     failed,
		Published:  r.Published,
		PublishErr: r.PublishErr,
	})
}
