package collector

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout 采集超过配置的 timeout
	ErrTimeout = errors.New("collector timeout")
	// ErrInternal 其它采集内部错误（后端不可达、响应格式错误、panic）
	ErrInternal = errors.New("collector internal error")
	// ErrCanceled 采集被硬关闭打断
	ErrCanceled = errors.New("collector canceled")
)

// Error is the per-collector failure record produced for one cycle.
type Error struct {
	Collector string
	Kind      error // one of ErrTimeout, ErrInternal, ErrCanceled
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Collector, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Collector, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// Reason is the low-cardinality label used for failure counters.
func (e *Error) Reason() string {
	switch {
	case errors.Is(e.Kind, ErrTimeout):
		return "timeout"
	case errors.Is(e.Kind, ErrCanceled):
		return "canceled"
	default:
		return "internal"
	}
}

// NewTimeoutError wraps err as a CollectorTimeout.
func NewTimeoutError(collector string, err error) *Error {
	return &Error{Collector: collector, Kind: ErrTimeout, Err: err}
}

// NewInternalError wraps err as a CollectorInternalError.
func NewInternalError(collector string, err error) *Error {
	return &Error{Collector: collector, Kind: ErrInternal, Err: err}
}

// Classify 把任意 collect 错误归类为 *Error；ctx 用于区分超时与取消
func Classify(ctx context.Context, collector string, err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Collector == collector {
		return ce
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewTimeoutError(collector, err)
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return &Error{Collector: collector, Kind: ErrCanceled, Err: err}
	default:
		return NewInternalError(collector, err)
	}
}
