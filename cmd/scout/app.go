package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/scout/agent"
	"github.com/c360studio/scout/config"
	"github.com/c360studio/scout/events"
	"github.com/c360studio/scout/llm"
	"github.com/c360studio/scout/metrics"
	"github.com/c360studio/scout/model"
	"github.com/c360studio/scout/research"
	"github.com/c360studio/scout/storage"
	"github.com/c360studio/scout/tools/market"
	"github.com/c360studio/scout/tools/web"
)

// app owns the wired research pipeline for one process: the engine, the
// optional NATS-backed archive and progress publishing, and the optional
// Prometheus endpoint.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	engine    *research.Engine
	collector *metrics.Collector
	registry  *prometheus.Registry
	runStore  *storage.RunStore

	nc         *nats.Conn
	metricsSrv *http.Server
}

// buildApp wires the pipeline from configuration. NATS and the metrics
// endpoint are optional: an unreachable NATS server degrades to a local
// run with a warning, it never blocks research.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}

	a.registry.MustRegister(collectors.NewGoCollector())
	a.collector = metrics.NewCollector(a.registry)

	// NATS first: the LLM call store hangs off it and feeds the client.
	var callStore *llm.CallStore
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(appName), nats.Timeout(5*time.Second))
		if err != nil {
			logger.Warn("NATS unavailable, running without archive and progress publishing",
				"url", cfg.NATS.URL, "error", err)
		} else {
			a.nc = nc

			js, err := jetstream.New(nc)
			if err != nil {
				return nil, fmt.Errorf("create JetStream context: %w", err)
			}

			if callStore, err = llm.NewCallStore(ctx, js); err != nil {
				logger.Warn("LLM call store unavailable", "error", err)
				callStore = nil
			}
			if a.runStore, err = storage.NewRunStore(ctx, js); err != nil {
				logger.Warn("run archive unavailable", "error", err)
				a.runStore = nil
			}
		}
	}

	llmClient := llm.NewClient(model.FromConfig(&cfg.Models),
		llm.WithLogger(logger),
		llm.WithRetryConfig(cfg.RetryPolicy()),
		llm.WithCallRecorder(llm.MultiRecorder(a.collector, callStore)),
	)

	marketClient := market.NewClient(cfg.Market.QuoteURL, cfg.Market.Timeout, cfg.RetryPolicy(), logger)
	metricsTools := []agent.Tool{
		market.NewQuoteTool(marketClient),
		market.NewFinancialsTool(marketClient),
	}

	searchClient := web.NewSearchClient(cfg.Web.SearchURL, os.Getenv("TAVILY_API_KEY"), cfg.RetryPolicy(), logger)
	fetcher := web.NewFetcher(cfg.Web.FetchTimeout, cfg.Web.UserAgent, cfg.Web.MaxPageBytes)
	positioningTools := []agent.Tool{
		web.NewSearchTool(searchClient, 0),
		web.NewFetchTool(fetcher),
	}

	agentCfg := agent.Config{
		MaxTurns:    cfg.Research.MaxAgentTurns,
		Temperature: cfg.Research.Temperature,
	}

	runners := []research.Runner{
		agent.NewMetricsRunner(llmClient, metricsTools, agentCfg, logger),
		agent.NewPositioningRunner(llmClient, positioningTools, agentCfg, logger),
	}

	engineOpts := []research.EngineOption{
		research.WithLogger(logger),
		research.WithMetrics(a.collector),
	}
	if a.runStore != nil {
		engineOpts = append(engineOpts, research.WithArchiver(a.runStore))
	}

	engine, err := research.NewEngine(llmClient, research.EngineConfig{
		DefaultEntities: cfg.Research.DefaultEntities,
		Identifiers:     cfg.Research.Identifiers,
	}, runners, engineOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build engine: %w", err)
	}
	a.engine = engine

	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}

	return a, nil
}

// observer composes the terminal progress printer with NATS progress
// publishing. Either side may be absent; nil means progress is dropped.
func (a *app) observer(showProgress bool) research.Observer {
	var obs multiObserver

	if showProgress {
		obs = append(obs, newProgressPrinter(os.Stderr))
	}
	if a.nc != nil {
		obs = append(obs, events.NewPublisher(a.nc, a.logger))
	}

	if len(obs) == 0 {
		return nil
	}
	return obs
}

// serveMetrics exposes /metrics on the configured address.
func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	a.metricsSrv = &http.Server{Addr: addr, Handler: mux}

	go func() {
		a.logger.Info("metrics endpoint listening", "addr", addr)
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics endpoint failed", "error", err)
		}
	}()
}

// Close releases the app's connections.
func (a *app) Close() {
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(shutdownCtx)
	}

	if a.nc != nil {
		// Flush so queued progress events reach the server before close.
		_ = a.nc.Flush()
		a.nc.Close()
	}
}

// multiObserver fans each progress event out to every observer in order.
type multiObserver []research.Observer

func (m multiObserver) OnProgress(e research.Event) {
	for _, obs := range m {
		obs.OnProgress(e)
	}
}
