package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/framewise/shotcoach/internal/llm"
	logsetup "github.com/framewise/shotcoach/internal/log"
	"github.com/framewise/shotcoach/internal/metadata"
	"github.com/framewise/shotcoach/internal/pipeline"
)

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	noLLM, _ := cmd.Flags().GetBool("no-llm")
	quiet, _ := cmd.Flags().GetBool("quiet")
	outPath, _ := cmd.Flags().GetString("out")

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}
	var bundle pipeline.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}

	var completer llm.Completer
	if cfg.Metadata.UseLLM && !noLLM {
		completer = llm.NewClient(cfg.LLM, logger)
	}
	synth := metadata.NewSynthesizer(cfg.Metadata, completer, logger)
	orch := pipeline.NewOrchestrator(cfg.Pipeline, synth, logger)

	var renderer *logsetup.ProgressRenderer
	if !quiet {
		renderer = logsetup.NewProgressRenderer(os.Stderr, "分析")
		orch.SetProgressFunc(func(p pipeline.Progress) {
			renderer.Update(p.Pct, p.Message)
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := orch.Run(ctx, bundle)

	if renderer != nil {
		if result.Error != "" {
			renderer.Fail(result.Error)
		} else {
			renderer.Finish("分析完成")
		}
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if outPath != "" {
		if err := os.WriteFile(outPath, append(encoded, '\n'), 0o644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	} else {
		fmt.Println(string(encoded))
	}

	if msg := pipeline.ConfidenceMessage(result.ConfidenceAction); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	if result.Error != "" {
		return fmt.Errorf("analysis failed: %s", result.Error)
	}
	return nil
}
