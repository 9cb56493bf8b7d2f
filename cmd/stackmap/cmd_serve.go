package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/metrics"
	"github.com/yousuf/stackmap/internal/resolve"
	"github.com/yousuf/stackmap/internal/server"
	"github.com/yousuf/stackmap/internal/session"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			if transport != "" {
				a.cfg.Server.Transport = transport
			}
			return runServe(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&transport, "transport", "", "http or stdio (overrides server.transport)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger := a.cfg, a.logger

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessionMgr := session.NewManager(logger)
	defer sessionMgr.CloseAll()

	m := metrics.New(reg)
	if cached, ok := rt.resolver.(*resolve.Cached); ok {
		m.WatchCache(cached.Len)
	}

	deps := server.Deps{
		Config:    cfg,
		Sessions:  sessionMgr,
		Resolver:  rt.resolver,
		Formatter: rt.formatter,
		Store:     rt.store,
		Metrics:   m,
		Logger:    logger,
	}

	switch cfg.Server.Transport {
	case "stdio":
		logger.Info("stackmap MCP server running on stdio")
		if err := server.NewMcpServer(deps).Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case "http":
		return serveHTTP(ctx, deps, reg)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Server.Transport)
	}
}

func serveHTTP(ctx context.Context, deps server.Deps, reg *prometheus.Registry) error {
	cfg, logger := deps.Config, deps.Logger

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newHTTPHandler(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.Server.SessionTimeout > 0 {
		go pruneSessions(ctx, deps.Sessions, cfg.Server.SessionTimeout)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("stackmap MCP server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("metrics", cfg.Server.MetricsPath))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return nil
}

// newHTTPHandler serves MCP over streamable HTTP, with metrics on the configured path
func newHTTPHandler(deps server.Deps) http.Handler {
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return server.NewMcpServer(deps)
	}, &mcp.StreamableHTTPOptions{
		SessionTimeout: deps.Config.Server.SessionTimeout,
	})

	mux := http.NewServeMux()
	if deps.Config.Server.MetricsPath != "" && deps.Metrics != nil {
		mux.Handle(deps.Config.Server.MetricsPath, deps.Metrics.Handler())
	}
	mux.Handle("/", server.WithSessionCleanup(handler, deps.Sessions, deps.Logger))
	return mux
}

// pruneSessions drops session registries idle for longer than timeout
func pruneSessions(ctx context.Context, sessions *session.Manager, timeout time.Duration) {
	ticker := time.NewTicker(min(timeout, time.Minute))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.PruneIdle(timeout)
		}
	}
}
