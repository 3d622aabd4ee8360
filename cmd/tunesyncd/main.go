package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"tunesync/internal/catalog/bridge"
	"tunesync/internal/config"
	"tunesync/internal/daemon"
	"tunesync/internal/disambig"
	"tunesync/internal/logging"
	"tunesync/internal/orchestrator"
	"tunesync/internal/runstate"
	"tunesync/internal/supervisor"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	history, err := runstate.OpenHistory(cfg)
	if err != nil {
		logger.Error("open run history", logging.Error(err))
		return
	}

	catalogClient, err := bridge.Start(ctx, cfg, logger)
	if err != nil {
		logger.Error("start catalog bridge", logging.Error(err))
		_ = history.Close()
		return
	}
	defer catalogClient.Close()

	store := runstate.NewMemoryStore()
	opts := []orchestrator.Option{orchestrator.WithHistory(history)}
	if cfg.LLM.APIKey != "" {
		opts = append(opts, orchestrator.WithDisambiguator(disambig.NewLLMClient(cfg.LLM)))
	} else {
		logger.Warn("no LLM API key configured; disambiguation disabled")
	}
	orch := orchestrator.New(cfg, catalogClient, store, logger, opts...)
	sup := supervisor.New(cfg, orch, store, logger)

	d, err := daemon.New(cfg, sup, history, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = history.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("tunesyncd shutting down")
}
