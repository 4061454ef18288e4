// cmd/notification-engine/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"

	"notification-engine/internal/api"
	"notification-engine/internal/common/camunda"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/observability"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/engine"
	changelistener "notification-engine/internal/workers/notification/change-listener"
	submitnotification "notification-engine/internal/workers/notification/submit-notification"
	"notification-engine/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification engine...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Backing stores ---
	deps, err := connect(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("failed to connect backing stores", zap.Error(err))
	}
	defer deps.Close(zapLog)

	eng, err := buildEngine(cfg, deps, log, obs)
	if err != nil {
		zapLog.Fatal("failed to build engine", zap.Error(err))
	}
	eng.Start(ctx)
	zapLog.Info("Engine ready",
		zap.String("dedupBackend", cfg.Engine.Dedup.Backend),
		zap.String("rateBackend", cfg.Engine.RateLimit.Backend),
		zap.Strings("auditSinks", cfg.Engine.Audit.Sinks),
	)

	// --- Trigger adapters ---
	var wg sync.WaitGroup
	var jobWorkers []worker.JobWorker
	var zeebe *camunda.Client

	if cfg.Camunda.Enabled {
		zeebe, jobWorkers = startCamunda(ctx, cfg, eng, log, zapLog)
	}

	if cfg.Listener.Enabled {
		l := changelistener.NewListener(changelistener.LoadConfig(cfg.Listener.Channel), deps.redis.GetClient(), eng, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Run(ctx); err != nil {
				zapLog.Error("Change listener stopped", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(cfg.Server, eng, deps.checks, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping adapters...")
	for _, w := range jobWorkers {
		w.Close()
		w.AwaitClose()
	}
	cancel()
	wg.Wait()

	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	zapLog.Info("Notification engine stopped")
}

// startCamunda connects to the broker and registers the submit-notification worker. The input
// schema comes from the activity registry.
func startCamunda(ctx context.Context, cfg *config.Config, eng *engine.Engine, log logger.Logger, zapLog *zap.Logger) (*camunda.Client, []worker.JobWorker) {
	client, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, log)
	if err != nil {
		zapLog.Fatal("failed to connect to Zeebe", zap.Error(err))
	}

	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("failed to load activity registry", zap.Error(err))
	}

	var schema *validation.Schema
	if act, ok := reg.FindByTaskType(submitnotification.TaskType); ok && len(act.InputSchema) > 0 {
		schema, err = validation.Compile(act.InputSchema)
		if err != nil {
			zapLog.Fatal("invalid input schema", zap.String("taskType", submitnotification.TaskType), zap.Error(err))
		}
	}

	wcfg := config.GetWorkerConfig(cfg, submitnotification.TaskType)
	hcfg := submitnotification.LoadConfig()
	if wcfg.Timeout > 0 {
		hcfg.Timeout = config.GetDuration(wcfg.Timeout)
	}
	handler := submitnotification.NewHandler(hcfg, eng, schema, log)

	var workers []worker.JobWorker
	if w := camunda.StartWorker(client.GetClient(), submitnotification.TaskType, wcfg, handler.Handle, log); w != nil {
		workers = append(workers, w)
	}
	return client, workers
}
