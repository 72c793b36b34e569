package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nao1215/sbdl/internal/config"
	"github.com/nao1215/sbdl/internal/model"
	"github.com/nao1215/sbdl/internal/pipeline"
	"github.com/nao1215/sbdl/internal/report"
	"github.com/spf13/cobra"
)

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape <soundboard-url>...",
		Short: "Download the sounds of specific soundboards",
		Long: `Scrape downloads the sounds of the given soundboard pages without crawling
the category tree.

Each soundboard is saved to <output-dir>/<soundboard name>/<sound>.mp3.
Sounds that already exist are skipped.

Examples:
  # Download one soundboard
  sbdl scrape https://www.realmofdarkness.net/sb/koth-hank/

  # Download three soundboards, two at a time
  sbdl scrape -b 2 \
    https://www.realmofdarkness.net/sb/koth-hank/ \
    https://www.realmofdarkness.net/sb/koth-bobby/ \
    https://www.realmofdarkness.net/sb/koth-dale/

  # Route requests through a local Tor SOCKS proxy
  sbdl scrape --proxy 127.0.0.1:9050 https://www.realmofdarkness.net/sb/koth-hank/`,
		Args: cobra.ArbitraryArgs,
		RunE: runScrapeCmd,
	}

	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of soundboards downloaded concurrently")
	addCommonFlags(cmd)

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.ValidateScrape(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	return runScrape(ctx, cfg, logger)
}

// runScrape downloads every target soundboard.
func runScrape(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting scrape",
		"targets", cfg.Targets,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	env, err := newEnvironment(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	summary := model.NewRunSummary("scrape", cfg.Targets[0])
	summary.SetCrawlStats(0, len(cfg.Targets))

	if len(cfg.Targets) > 1 && cfg.BatchSize > 1 {
		err = runBatchScrape(ctx, cfg, env, summary)
	} else {
		err = runSequentialScrape(ctx, cfg, env, summary)
	}

	return env.finish(ctx, cfg, summary, err)
}

// runSequentialScrape downloads targets one at a time with a progress bar.
func runSequentialScrape(ctx context.Context, cfg *config.Config, env *environment, summary *model.RunSummary) error {
	progress := report.NewProgressPrinter(env.status)
	dispatcher := pipeline.NewDispatcher(
		env.pipelineFactory(cfg, progress.Handle),
		summary,
		pipeline.WithDispatcherLogger(env.logger),
		pipeline.WithResultHook(func(result model.SoundboardResult) {
			printResult(env.status, result)
		}),
	)

	for _, target := range cfg.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := dispatcher.Dispatch(ctx, target); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			env.logger.Error("scrape failed", "target", target, "error", err)
		}
	}

	return nil
}

// runBatchScrape downloads several soundboards concurrently. Progress bars
// would interleave, so each soundboard reports one line when it is done.
func runBatchScrape(ctx context.Context, cfg *config.Config, env *environment, summary *model.RunSummary) error {
	fmt.Fprintf(env.status, "Starting batch scrape of %d soundboards (concurrency: %d)...\n\n",
		len(cfg.Targets), cfg.BatchSize)

	bp := pipeline.NewBatchProcessor(
		env.pipelineFactory(cfg, nil),
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(env.logger),
	)

	var (
		mu   sync.Mutex
		done int
	)
	return bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(result model.SoundboardResult, _ int) {
		summary.AddSoundboard(result)

		mu.Lock()
		defer mu.Unlock()
		done++

		fmt.Fprintf(env.status, "[%d/%d] ", done, len(cfg.Targets))
		printResult(env.status, result)
	})
}
