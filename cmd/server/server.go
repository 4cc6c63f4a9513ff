// Package server exposes the ops endpoints: self-metrics, health and the
// last cycle report.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dcn-collector/pkg/config"
	"github.com/dcn-collector/pkg/orchestrator"
)

const defaultShutdownTimeout = 5 * time.Second

// StatusSource 提供 /status 所需的编排器状态
type StatusSource interface {
	State() orchestrator.State
	Collectors() []string
	LastReport() (orchestrator.CycleReport, bool)
}

// Server HTTP服务实例，封装核心依赖和配置
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
	gatherer prometheus.Gatherer
	status   StatusSource
	router   chi.Router
	addr     net.Addr
}

// statusWriter 包装ResponseWriter，捕获状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获状态码
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// NewHTTPServer 创建HTTP服务实例
func NewHTTPServer(cfg config.ServerConfig, logger *zap.Logger, gatherer prometheus.Gatherer, status StatusSource) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "http")),
		gatherer: gatherer,
		status:   status,
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler 返回路由（测试用）
func (s *Server) Handler() http.Handler { return s.router }

// Addr 实际监听地址；Start 之前为 nil
func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.StripSlashes)
	r.Use(s.logMiddleware)

	r.Get("/", s.indexHandler)
	r.Get("/health", s.healthHandler)
	r.Get("/status", s.statusHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))
	return r
}

// logMiddleware 统一日志记录
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>DCN Collector</title></head>
<body>
	<h1>DCN Collector</h1>
	<a href="/health">/health</a><br>
	<a href="/status">/status</a><br>
	<a href="/metrics">/metrics</a>
</body>
</html>
`

func (s *Server) indexHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// healthHandler 进程存活即 200；编排器已停止时 503
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	if s.status != nil && s.status.State() == orchestrator.StateStopped {
		http.Error(w, "stopped", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("OK"))
}

type statusResponse struct {
	State      string                    `json:"state"`
	Collectors []string                  `json:"collectors"`
	LastCycle  *orchestrator.CycleReport `json:"last_cycle"`
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		http.Error(w, "status unavailable", http.StatusServiceUnavailable)
		return
	}
	resp := statusResponse{
		State:      s.status.State().String(),
		Collectors: s.status.Collectors(),
	}
	if resp.Collectors == nil {
		resp.Collectors = []string{}
	}
	if report, ok := s.status.LastReport(); ok {
		resp.LastCycle = &report
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encode status failed", zap.Error(err))
	}
}

// Start 监听端口并在后台提供服务（非阻塞）；端口占用等错误同步返回
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()
	s.logger.Info("starting HTTP server", zap.String("listen_addr", s.addr.String()))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown 优雅关闭HTTP服务；ctx 无截止时间时使用默认超时
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	s.logger.Info("HTTP server shutdown successfully")
	return nil
}
