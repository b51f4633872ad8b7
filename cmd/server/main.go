package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/fractal-lba/scorelens/internal/config"
	"github.com/fractal-lba/scorelens/internal/logging"
	"github.com/fractal-lba/scorelens/internal/server"
)

func main() {
	configPath := flag.String("config", "", "config file (default: ./scorelens.yaml)")
	flag.Parse()

	cfg, err := config.Load(viper.New(), *configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		stop()
		os.Exit(1)
	}
}
