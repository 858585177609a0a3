package conversationworker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-tour-booking/cmd/mainconfig"
	appbootstrap "github.com/wolfman30/whatsapp-tour-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

// Run starts the async conversation worker and blocks until ctx is canceled.
// It also serves /health and /metrics on cfg.Port for the orchestrator.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("conversation worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("conversation worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
	}

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	infra, err := appbootstrap.BuildInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	queue, err := appbootstrap.BuildQueue(cfg, &awsConfig)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	worker, err := appbootstrap.BuildWorker(ctx, cfg, appbootstrap.WorkerDeps{
		Infra:     infra,
		Queue:     queue,
		AWS:       &awsConfig,
		Messaging: metrics.NewMessagingMetrics(registry),
		Steps:     metrics.NewConversationMetrics(registry),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to configure conversation worker: %w", err)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: appbootstrap.BuildRouter(cfg, appbootstrap.HTTPDeps{
			Infra:          infra,
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker health server failed", "error", err)
		}
	}()

	worker.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount, "queue", cfg.ConversationQueueURL)

	<-ctx.Done()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = srv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}

	return nil
}
