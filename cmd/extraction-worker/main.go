package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"docintel/internal/biz"
	"docintel/internal/conf"
	"docintel/internal/data"
	"docintel/internal/infra/de"
	"docintel/internal/infra/notify"
	"docintel/internal/worker"
	"docintel/pkg/health"
)

var configFile = flag.String("config", "", "配置文件路径")

func main() {
	flag.Parse()

	config, err := conf.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := initLogger(config.Observability)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Extraction Worker",
		zap.Strings("tasks", config.Worker.Tasks),
		zap.String("environment", config.Observability.Environment),
	)

	ctx, cancel := context.WithTimeout(context.Background(), config.Mongo.ConnectTimeout)
	store, cleanup, err := data.NewData(ctx, config.Mongo, logger)
	cancel()
	if err != nil {
		logger.Fatal("Failed to connect store", zap.Error(err))
	}
	defer cleanup()

	workspaces := store.NewWorkspaceRepo()
	documents := store.NewDocumentRepo()
	bundles := store.NewFieldBundleRepo()
	fields := store.NewFieldRepo()
	values := store.NewFieldValueRepo()
	tasks := store.NewTaskRepo()
	workflows := store.NewWorkflowRepo()

	extraction := de.NewClient(config.Extraction, logger)
	usageMetrics := config.Observability.UpdateUsageMetrics

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	defer rdb.Close()
	notifier := notify.NewNotifier(config.Notification, rdb, &notify.LogSink{Log: logger}, logger)

	engine := biz.NewDependencyEngine(fields, documents, values, logger)
	upserter := biz.NewFieldValueUpserter(values, fields, engine, logger)
	progress := biz.NewProgressCounter(fields, logger)
	progress.SetObserver(engine.OnFieldComplete)
	extractionTask := biz.NewExtractionTask(extraction, fields, workspaces, engine, upserter, progress, usageMetrics, logger)
	matcher := biz.NewWorkflowMatcher(workflows, bundles, fields, values, extraction, notifier, logger)

	registry := worker.NewRegistry()
	registry.Register(worker.NewExtractionHandler(extractionTask), config.Worker.Tasks)
	registry.Register(worker.NewIngestionHandler(documents, matcher, logger), config.Worker.Tasks)

	w := worker.NewWorker(config.Worker, config.Queue, registry, tasks, logger)

	checks := health.NewRegistry(3 * time.Second)
	checks.Register("mongo", store.Ping)
	checks.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		results, healthy := checks.Check(r.Context())
		rw.Header().Set("Content-Type", "application/json")
		if !healthy {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(rw).Encode(results)
	})
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Server.MetricsPort),
		Handler: mux,
	}
	go func() {
		logger.Info("Metrics server starting", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down worker...")
		stop()
		<-done
	case err := <-done:
		stop()
		if err != nil {
			logger.Error("Worker exited with error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}

	logger.Info("Worker exited")
}

// initLogger 初始化日志
func initLogger(cfg conf.ObservabilityConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	zapConfig.InitialFields = map[string]interface{}{
		"service": cfg.ServiceName,
	}

	return zapConfig.Build()
}
