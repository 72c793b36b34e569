package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/briandowns/spinner"
	"github.com/nao1215/sbdl/internal/config"
	"github.com/nao1215/sbdl/internal/crawler"
	"github.com/nao1215/sbdl/internal/model"
	"github.com/nao1215/sbdl/internal/pipeline"
	"github.com/nao1215/sbdl/internal/report"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [root-url]",
		Short: "Crawl every soundboard category and download all sounds",
		Long: `Crawl walks the soundboard categories depth-first, starting from the
soundboard index, and downloads every soundboard it discovers.

Each soundboard is saved to <output-dir>/<soundboard name>/<sound>.mp3.
Sounds that already exist are skipped, so an interrupted crawl can simply
be started again.

Examples:
  # Crawl the whole site
  sbdl crawl

  # Crawl a single category
  sbdl crawl https://www.realmofdarkness.net/sb/cartoons/

  # Only expand two category levels below the root
  sbdl crawl -d 2

  # Download four sounds at a time and honour robots.txt
  sbdl crawl -j 4 --robots

  # Write a Markdown report of the run
  sbdl crawl --markdown --report crawl.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum category levels below the root (0 = unlimited)")
	cmd.Flags().Bool("robots", false,
		"Skip links disallowed by the site's robots.txt")
	addCommonFlags(cmd)

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.ValidateCrawl(); err != nil {
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

	return runCrawl(ctx, cfg, logger)
}

// runCrawl crawls from cfg.RootURL and downloads every discovered
// soundboard.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting crawl",
		"root", cfg.RootURL,
		"outputDir", cfg.OutputDir,
		"depth", cfg.MaxDepth,
		"saveToDB", cfg.SaveToDB,
	)

	env, err := newEnvironment(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	summary := model.NewRunSummary("crawl", cfg.RootURL)
	progress := report.NewProgressPrinter(env.status)
	status := newCrawlStatus(env.status)

	dispatcher := pipeline.NewDispatcher(
		env.pipelineFactory(cfg, progress.Handle),
		summary,
		pipeline.WithDispatcherLogger(logger),
		pipeline.WithResultHook(func(result model.SoundboardResult) {
			printResult(env.status, result)
		}),
	)

	opts := []crawler.SpiderOption{
		crawler.WithLinkPrefix(cfg.LinkPrefix()),
		crawler.WithExcludeURLs(cfg.Excluded()),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithMaxDepth(cfg.MaxDepth),
		crawler.WithOnPage(status.Page),
		crawler.WithLogger(logger),
	}
	if cfg.RespectRobots {
		policy, err := env.client.LoadRobots(ctx, cfg.BaseURL, cfg.UserAgent)
		if err != nil {
			logger.Warn("robots.txt unavailable, crawling without it", "error", err)
		} else {
			opts = append(opts, crawler.WithRobots(policy))
		}
	}
	spider := crawler.NewSpider(env.client, opts...)

	// Downloads draw their own progress bar, so the spinner pauses.
	dispatch := crawler.DispatcherFunc(func(ctx context.Context, soundboardURL string) error {
		status.Pause()
		defer status.Resume()
		return dispatcher.Dispatch(ctx, soundboardURL)
	})

	status.Resume()
	stats, crawlErr := spider.Crawl(ctx, cfg.RootURL, dispatch)
	status.Pause()

	if stats != nil {
		summary.SetCrawlStats(stats.PagesVisited, len(stats.Discovered))
		for _, f := range stats.Failures {
			summary.AddCrawlFailure(f.URL, errors.New(f.Error))
		}
	}

	return env.finish(ctx, cfg, summary, crawlErr)
}

// crawlStatus shows a spinner with the page being crawled and the number
// of soundboards found so far.
type crawlStatus struct {
	spinner *spinner.Spinner
}

func newCrawlStatus(w io.Writer) *crawlStatus {
	return &crawlStatus{
		spinner: spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w)),
	}
}

// Page updates the spinner text. It matches crawler.PageFunc.
func (s *crawlStatus) Page(pageURL string, discovered int) {
	s.spinner.Lock()
	s.spinner.Suffix = fmt.Sprintf(" scraping %s | soundboards found: %d", pageURL, discovered)
	s.spinner.Unlock()
}

// Pause stops the spinner and clears its line.
func (s *crawlStatus) Pause() {
	s.spinner.Stop()
}

// Resume restarts the spinner. It does nothing when the output is not a
// terminal.
func (s *crawlStatus) Resume() {
	s.spinner.Start()
}
