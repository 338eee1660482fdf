package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexium-ai/lexium/internal/app"
	"github.com/lexium-ai/lexium/internal/config"
	"github.com/lexium-ai/lexium/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	cfg := config.LoadConfig()

	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logg.Sync()

	application, err := app.NewApp(ctx, cfg, logg)
	if err != nil {
		logg.Fatal("startup failed", "err", err)
	}
	defer application.Close()

	go application.Server.Start()

	logg.Info("lexium is running; DB connected and bootstrapped")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", "err", err)
	}
}
