package signal

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// NotifyContext 返回在 SIGINT/SIGTERM 时取消的 ctx
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// WaitForShutdown 阻塞直到 stop 结束（收到退出信号），然后在 timeout 内执行 shutdownFunc。
// shutdownFunc 超时未返回时放弃等待，由进程退出回收。
func WaitForShutdown(stop context.Context, logger *zap.Logger, timeout time.Duration, shutdownFunc func(ctx context.Context) error) error {
	<-stop.Done()
	logger.Info("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- shutdownFunc(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
		logger.Info("shutdown completed")
		return nil
	case <-ctx.Done():
		logger.Warn("shutdown timeout exceeded", zap.Duration("timeout", timeout))
		return ctx.Err()
	}
}
