package main

import (
	"context"
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
	"docintel/internal/infra/rabbit"
	"docintel/internal/server"
	"docintel/internal/service"
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

	logger.Info("Starting Field Service",
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

	publisher := rabbit.NewPublisher(config.Queue, logger)
	defer publisher.Close()
	extraction := de.NewClient(config.Extraction, logger)
	usageMetrics := config.Observability.UpdateUsageMetrics

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	defer rdb.Close()

	checks := health.NewRegistry(3 * time.Second)
	checks.Register("mongo", store.Ping)
	checks.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})

	engine := biz.NewDependencyEngine(fields, documents, values, logger)
	upserter := biz.NewFieldValueUpserter(values, fields, engine, logger)
	progress := biz.NewProgressCounter(fields, logger)
	progress.SetObserver(engine.OnFieldComplete)
	dispatcher := biz.NewDispatcher(publisher, tasks, documents, values, progress, logger)
	// 入队失败时同进程兜底执行
	inline := biz.NewExtractionTask(extraction, fields, workspaces, engine, upserter, progress, usageMetrics, logger)
	dispatcher.SetInlineRunner(inline)

	services := server.Services{
		Field:      service.NewFieldService(workspaces, bundles, fields, values, dispatcher, usageMetrics, logger),
		FieldValue: service.NewFieldValueService(workspaces, values, upserter, logger),
		Grid:       service.NewGridService(workspaces, bundles, fields, values, extraction, logger),
		Task:       service.NewTaskService(tasks),
		Workspace:  service.NewWorkspaceService(workspaces, bundles, documents, tasks, publisher, logger),
		Workflow:   service.NewWorkflowService(workspaces, workflows),

		Health:         checks,
		ExtractLimiter: server.NewRateLimiter(rdb, config.Server.ExtractRatePerMinute, time.Minute, logger),
	}
	httpServer := server.NewHTTPServer(services, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Server.HTTPPort),
		Handler:      httpServer.Engine(),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Server.MetricsPort),
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("Metrics server starting", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Metrics server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}

	logger.Info("Servers exited")
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
