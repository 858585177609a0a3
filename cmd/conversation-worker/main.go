package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/wolfman30/whatsapp-tour-booking/internal/config"
	conversationworker "github.com/wolfman30/whatsapp-tour-booking/internal/worker/conversation"
	"github.com/wolfman30/whatsapp-tour-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := conversationworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("conversation worker exited", "error", err)
		os.Exit(1)
	}
}
