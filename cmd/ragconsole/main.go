package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"ragserver/internal/app"
	"ragserver/internal/config"
	"ragserver/internal/logger"
	"ragserver/internal/tui"
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
	if err := app.Bootstrap(context.Background(), pipeline, cfg, zlog); err != nil {
		zlog.Fatal("initialization failed", zap.Error(err))
	}

	banner := fmt.Sprintf("Knowledge base: %s | model: %s", cfg.KnowledgeBase.Path, cfg.LLM.Model)
	m := tui.New(pipeline, banner)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		zlog.Fatal("console failed", zap.Error(err))
	}
}
