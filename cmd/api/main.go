package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/whatsapp-tour-booking/cmd/mainconfig"
	appbootstrap "github.com/wolfman30/whatsapp-tour-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	"github.com/wolfman30/whatsapp-tour-booking/internal/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-tour-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server exited", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	infra, err := appbootstrap.BuildInfra(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	queue, err := appbootstrap.BuildQueue(cfg, &awsCfg)
	if err != nil {
		return err
	}
	publisher := conversation.NewPublisher(queue, logger)

	metricsHandler, messagingMetrics, conversationMetrics := setupMetrics()

	// Development mode: the API process consumes its own in-memory queue.
	var inline *conversation.Worker
	if cfg.UseMemoryQueue {
		inline, err = appbootstrap.BuildWorker(ctx, cfg, appbootstrap.WorkerDeps{
			Infra:     infra,
			Queue:     queue,
			AWS:       &awsCfg,
			Messaging: messagingMetrics,
			Steps:     conversationMetrics,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to configure inline worker: %w", err)
		}
		inline.Start(ctx)
		logger.Info("inline conversation workers started", "workers", cfg.WorkerCount)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: appbootstrap.BuildRouter(cfg, appbootstrap.HTTPDeps{
			Infra:          infra,
			Publisher:      publisher,
			Messaging:      messagingMetrics,
			MetricsHandler: metricsHandler,
		}, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if inline != nil {
		inline.Wait()
	}
	logger.Info("server stopped")
	return nil
}

// setupMetrics registers the service metrics on a private registry and returns its handler.
func setupMetrics() (http.Handler, *metrics.MessagingMetrics, *metrics.ConversationMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	messagingMetrics := metrics.NewMessagingMetrics(registry)
	conversationMetrics := metrics.NewConversationMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), messagingMetrics, conversationMetrics
}
