package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maas-mcp/bridge/internal/cache"
	"github.com/maas-mcp/bridge/internal/cancelmgr"
	"github.com/maas-mcp/bridge/internal/config"
	"github.com/maas-mcp/bridge/internal/dispatch"
	"github.com/maas-mcp/bridge/internal/event"
	"github.com/maas-mcp/bridge/internal/maasclient"
	"github.com/maas-mcp/bridge/internal/mcpserver"
	"github.com/maas-mcp/bridge/internal/otelmetrics"
	"github.com/maas-mcp/bridge/internal/progress"
	"github.com/maas-mcp/bridge/internal/resources"
	"github.com/maas-mcp/bridge/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.UpstreamBaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: MAAS_API_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsConfig := otelmetrics.DefaultConfig()
	if os.Getenv("OTEL_METRICS_ENABLED") == "true" {
		metricsConfig.Enabled = true
		metricsConfig.ExporterType = otelmetrics.ExporterStdout
	}
	metrics, err := otelmetrics.New(ctx, metricsConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: setting up metrics: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
	}()

	client := maasclient.New(cfg.UpstreamBaseURL, maasclient.Credentials{
		ConsumerKey: os.Getenv("MAAS_CONSUMER_KEY"),
		TokenKey:    os.Getenv("MAAS_TOKEN_KEY"),
		TokenSecret: os.Getenv("MAAS_TOKEN_SECRET"),
	}, &http.Client{Timeout: 30 * time.Second}, 15*time.Second)

	ring := event.NewStore(cfg.EventBufferSize)
	cancelMgr := cancelmgr.New(cfg.DisconnectTimeout)
	tracker := progress.New(ring, cancelMgr, cfg.EventBufferSize, cfg.HeartbeatInterval)

	var resourceCache *cache.Cache
	if cfg.CacheEnabled {
		strategy := cache.StrategyTimeBased
		if cfg.CacheStrategy == "lru" {
			strategy = cache.StrategyLRU
		}
		resourceCache = cache.New(strategy, cfg.CacheMaxSize, cfg.CacheMaxAge, nil)
	}

	dispatcher := dispatch.New(tracker, resourceCache, metrics)

	dispatcher.RegisterTool(tools.NewAllocateMachineTool(client))
	dispatcher.RegisterTool(tools.NewDeployMachineTool(client))
	dispatcher.RegisterTool(tools.NewUploadScriptTool(client))
	dispatcher.RegisterTool(tools.NewCreateTagTool(client, func() {
		dispatcher.InvalidateResourcePrefix("maas://tags")
	}))

	dispatcher.RegisterResource(resources.NewMachinesResource(client))
	dispatcher.RegisterResource(resources.NewMachineResource(client))
	dispatcher.RegisterResource(resources.NewSubnetsResource(client))
	dispatcher.RegisterResource(resources.NewTagsResource(client))

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.MCPPort)
	srv := mcpserver.New(dispatcher, addr)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error: starting server: %v\n", err)
		os.Exit(1)
	}
	slog.Info("maas-mcp bridge listening", "addr", srv.Addr())

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during server shutdown", "error", err)
	}
	tracker.Shutdown()
}
