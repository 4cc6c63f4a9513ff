package agent

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/dcn-collector/cmd/server"
	"github.com/dcn-collector/pkg/config"
	"github.com/dcn-collector/pkg/logger"
	"github.com/dcn-collector/pkg/registers"
	"github.com/dcn-collector/pkg/signal"
	"github.com/dcn-collector/pkg/util"
)

const (
	projectName = "dcn-collector"
	bannerColor = "cyan"

	// 硬截止时间之外留给采集器/Publisher Close 的时间
	shutdownGrace = 5 * time.Second
)

// runAgent 启动顺序：日志 → banner → 组装 → 采集循环 → 运维端点 → 等待信号 → 关闭
func runAgent(parent context.Context, cfg *config.Config, out io.Writer) error {
	log, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	util.PrintBanner(out, projectName, bannerColor, fmt.Sprintf("cadence=%s topic=%s brokers=%v",
		cfg.CadenceDuration(), cfg.Kafka.Topic, cfg.Kafka.Brokers))
	log.Info("config loaded",
		zap.Int("cadence_seconds", cfg.Cadence),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.String("log_level", cfg.Log.Level),
		zap.String("log_format", cfg.Log.Format))

	c, err := registers.Build(cfg, log)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	stop, cancel := signal.NotifyContext(parent)
	defer cancel()

	if err := c.Orchestrator.Start(stop); err != nil {
		_ = c.Orchestrator.Shutdown(context.Background())
		return fmt.Errorf("start orchestrator: %w", err)
	}

	var httpServer *server.Server
	if cfg.Server.Enable {
		httpServer = server.NewHTTPServer(cfg.Server, log, c.Registry, c.Orchestrator)
		if err := httpServer.Start(); err != nil {
			_ = c.Orchestrator.Shutdown(context.Background())
			return fmt.Errorf("start HTTP server: %w", err)
		}
	}

	log.Info("dcn-collector started", zap.Strings("collectors", c.Orchestrator.Collectors()))

	// 关闭顺序：采集循环（含 in-flight 周期）→ HTTP 服务
	return signal.WaitForShutdown(stop, log, cfg.ShutdownTimeout+shutdownGrace, func(ctx context.Context) error {
		err := c.Orchestrator.Shutdown(ctx)
		if httpServer != nil {
			if herr := httpServer.Shutdown(ctx); herr != nil && err == nil {
				err = herr
			}
		}
		return err
	})
}
