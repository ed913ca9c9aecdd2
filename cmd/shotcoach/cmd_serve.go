package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/framewise/shotcoach/internal/httpapi"
	"github.com/framewise/shotcoach/internal/llm"
	"github.com/framewise/shotcoach/internal/metadata"
	"github.com/framewise/shotcoach/internal/metrics"
	"github.com/framewise/shotcoach/internal/pipeline"
	"github.com/framewise/shotcoach/internal/session"
	"github.com/framewise/shotcoach/internal/stream"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	registry := metrics.NewRegistry()

	var completer llm.Completer
	if cfg.Metadata.UseLLM {
		completer = registry.InstrumentCompleter(llm.NewClient(cfg.LLM, logger))
	}
	synth := metadata.NewSynthesizer(cfg.Metadata, completer, logger)
	orch := pipeline.NewOrchestrator(cfg.Pipeline, synth, logger)

	sessions := session.NewManager(cfg.Session, logger)
	wsHandler := stream.NewHandler(cfg.Stream, sessions, logger)

	server := httpapi.NewServer(cfg.Server, httpapi.Deps{
		Sessions:     sessions,
		Stream:       wsHandler,
		Orchestrator: orch,
		Metrics:      registry,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sessions.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
