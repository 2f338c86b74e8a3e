// Command planner implements the queuecap capacity planning engine.
//
// The planner runs a continuous evaluation loop that:
//  1. Collects arrival-rate history and fleet facts for one queue
//  2. Forecasts demand over the plan horizon
//  3. Sizes the worker fleet with an Erlang-C queueing model
//  4. Clamps the move through the safety governor and paces it into steps
//  5. Replays the plan through a simulator and prices the outcome
//  6. Stores the plan for operators and an external actuator to consume
//
// The planner never applies a plan itself; it only recommends.
//
// The planner serves an HTTP API on port 8082 (configurable) providing:
//   - GET  /plan/current?queue=<name> - Retrieve the latest plan
//   - POST /plan/generate - Run an evaluation tick now
//   - POST /whatif - Run a standalone simulation
//   - GET  /healthz - Health check endpoint
//   - GET  /metrics - Prometheus metrics endpoint
//
// Usage:
//
//	planner \
//	  -queue=orders \
//	  -prom-url=http://prometheus:9090 \
//	  -rate-query='sum(rate(jobs_enqueued_total{queue="orders"}[1m]))' \
//	  -service-time=83ms \
//	  -target-wait=2s \
//	  -min=2 -max=50
//
// Environment variables mirror the flags; see cmd/planner/config.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/queuecap/cmd/planner/config"
	"github.com/HatiCode/queuecap/cmd/planner/logger"
	"github.com/HatiCode/queuecap/cmd/planner/metrics"
	"github.com/HatiCode/queuecap/cmd/planner/router"
	"github.com/HatiCode/queuecap/pkg/capacity"
	"github.com/HatiCode/queuecap/pkg/collect"
	"github.com/HatiCode/queuecap/pkg/cost"
	"github.com/HatiCode/queuecap/pkg/httpx"
	"github.com/HatiCode/queuecap/pkg/planner"
	"github.com/HatiCode/queuecap/pkg/storage"
	queuecaptls "github.com/HatiCode/queuecap/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	logger := logger.New(cfg)
	slog.SetDefault(logger)

	logger.Info("starting queuecap planner",
		"version", version,
		"queue", cfg.Queue,
		"collector", cfg.Collector,
	)

	rates, workers, backlogs, err := buildCollectors(cfg)
	if err != nil {
		logger.Error("failed to build collectors", "error", err)
		os.Exit(1)
	}

	store, err := buildStore(cfg, logger)
	if err != nil {
		logger.Error("failed to build store", "error", err)
		os.Exit(1)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
	}

	p := planner.New(planner.Options{
		Governor: capacity.Config{
			MinWorkers:           cfg.MinWorkers,
			MaxWorkers:           cfg.MaxWorkers,
			ScaleUpUtilization:   cfg.ScaleUpUtilization,
			ScaleDownUtilization: cfg.ScaleDownUtilization,
			MaxPlanDelta:         cfg.MaxPlanDelta,
			MaxStepSize:          cfg.MaxStepSize,
			Cooldown:             cfg.Cooldown,
			ConfidenceThreshold:  cfg.ConfidenceThreshold,
		},
		Horizon:        cfg.Horizon,
		Step:           cfg.Step,
		SafetyMargin:   cfg.SafetyMargin,
		SeasonalPeriod: cfg.SeasonalPeriod,
		Rates: cost.Rates{
			WorkerPerHour:    cfg.WorkerCostPerHour,
			ViolationPerHour: cfg.ViolationCostPerHour,
		},
		Seed:   cfg.SimSeed,
		Store:  store,
		Logger: logger,
	})

	slo := planner.SLOTarget{
		TargetP95Wait: cfg.TargetWait,
		MaxBacklog:    cfg.MaxBacklog,
		MaxDrainTime:  cfg.MaxDrainTime,
		ErrorBudget:   cfg.ErrorBudget,
	}

	loop := NewLoop(
		cfg.Queue,
		rates, workers, backlogs,
		p,
		slo,
		cfg.ServiceTime,
		cfg.ServiceTimeStd,
		cfg.Window,
		logger,
		metrics.New(cfg.Queue),
	)

	staleAfter := 2 * cfg.Interval // Plan is stale if older than 2x the interval
	mux := router.SetupRoutes(store, loop, staleAfter, logger)
	handler := httpx.LoggingMiddleware(logger)(httpx.RecoveryMiddleware(logger)(mux))
	httpServer := httpx.NewServer(cfg.Listen, handler, logger)

	if cfg.TLS.Enabled {
		tlsConfig, err := queuecaptls.NewServerTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.CAFile)
		if err != nil {
			logger.Error("failed to build TLS configuration", "error", err)
			os.Exit(1)
		}
		httpServer.SetTLSConfig(tlsConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := loop.Run(ctx, cfg.Interval); err != nil && err != context.Canceled {
			logger.Error("evaluation loop failed", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		if cfg.TLS.Enabled {
			serverErr <- httpServer.StartTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErr <- httpServer.Start()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	cancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

// buildCollectors constructs the rate collector plus the optional workers and
// backlog collectors from configuration.
func buildCollectors(cfg *config.Config) (rates, workers, backlogs collect.Collector, err error) {
	switch cfg.Collector {
	case "prometheus":
		step := int(cfg.Step.Seconds())
		rates = &collect.PrometheusCollector{
			ServerURL:   cfg.PromURL,
			Query:       cfg.RateQuery,
			StepSeconds: step,
		}
		if cfg.WorkersQuery != "" {
			workers = &collect.PrometheusCollector{
				ServerURL:   cfg.PromURL,
				Query:       cfg.WorkersQuery,
				StepSeconds: step,
			}
		}
		if cfg.BacklogQuery != "" {
			backlogs = &collect.PrometheusCollector{
				ServerURL:   cfg.PromURL,
				Query:       cfg.BacklogQuery,
				StepSeconds: step,
			}
		}
		return rates, workers, backlogs, nil

	case "http":
		client, cerr := httpx.NewClient(cfg.TLS, 30*time.Second)
		if cerr != nil {
			return nil, nil, nil, cerr
		}
		rates = &collect.HTTPCollector{
			URL:             cfg.CollectorConfig["url"],
			Method:          cfg.CollectorConfig["method"],
			Body:            cfg.CollectorConfig["body"],
			RatePath:        cfg.CollectorConfig["ratePath"],
			TimestampPath:   cfg.CollectorConfig["timestampPath"],
			TimestampFormat: cfg.CollectorConfig["timestampFormat"],
			StepSeconds:     int(cfg.Step.Seconds()),
			HTTPClient:      client,
			Headers:         collectorHeaders(cfg.CollectorConfig),
			TemplateVars:    cfg.CollectorConfig,
		}
		return rates, nil, nil, nil
	}

	// Unreachable: config.Validate rejects unknown collectors.
	return nil, nil, nil, nil
}

// collectorHeaders lifts COLLECTOR_AUTHORIZATION and COLLECTOR_CONTENT_TYPE
// into HTTP headers for the generic collector.
func collectorHeaders(cc map[string]string) map[string]string {
	headers := make(map[string]string)
	if auth := cc["authorization"]; auth != "" {
		headers["Authorization"] = auth
	}
	if ct := cc["contentType"]; ct != "" {
		headers["Content-Type"] = ct
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// buildStore constructs the configured storage backend.
func buildStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		logger.Info("using redis storage",
			"addr", cfg.RedisAddr,
			"db", cfg.RedisDB,
			"ttl", cfg.RedisTTL,
		)
		return storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
	default:
		logger.Info("using in-memory storage")
		return storage.NewMemoryStore(), nil
	}
}
