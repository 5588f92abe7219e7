package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragserver/internal/app"
	"ragserver/internal/config"
	"ragserver/internal/logger"
	"ragserver/internal/server"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to config YAML")
	flag.Parse()

	_ = godotenv.Load()

	zlog, err := logger.New()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		zlog.Fatal("failed to load config", zap.Error(err))
	}

	pipeline, err := app.Build(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to assemble pipeline", zap.Error(err))
	}

	// Index in the background so /health can report "initializing" while the
	// knowledge base is being embedded. Requests fail with 503 until ready.
	go func() {
		start := time.Now()
		if err := app.Bootstrap(context.Background(), pipeline, cfg, zlog); err != nil {
			zlog.Error("initialization failed, serving 503s", zap.Error(err))
			return
		}
		zlog.Info("pipeline ready", zap.Duration("took", time.Since(start)))
	}()

	srv := server.New(pipeline, zlog)
	go func() {
		if err := srv.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("shutdown failed", zap.Error(err))
	}
	zlog.Info("server stopped")
}
