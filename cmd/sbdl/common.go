package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nao1215/sbdl/internal/config"
	"github.com/nao1215/sbdl/internal/database"
	"github.com/nao1215/sbdl/internal/download"
	"github.com/nao1215/sbdl/internal/fetch"
	sbdllog "github.com/nao1215/sbdl/internal/log"
	"github.com/nao1215/sbdl/internal/model"
	"github.com/nao1215/sbdl/internal/pipeline"
	"github.com/nao1215/sbdl/internal/report"
	"github.com/nao1215/sbdl/internal/soundboard"
	"github.com/nao1215/sbdl/internal/tor"
	"github.com/spf13/cobra"
)

// addCommonFlags registers the flags shared by crawl and scrape.
func addCommonFlags(cmd *cobra.Command) {
	// Output and request flags
	cmd.Flags().StringP("output-dir", "o", config.DefaultOutputDir,
		"Directory soundboard folders are created in")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().IntP("retries", "r", config.DefaultMaxRetries,
		"Retries for a failed page or sound download")
	cmd.Flags().Float64("rate", config.DefaultRequestsPerSecond,
		"Requests per second sent to the site (0 disables pacing)")
	cmd.Flags().IntP("jobs", "j", config.DefaultConcurrency,
		"Number of sounds downloaded in parallel per soundboard")
	cmd.Flags().String("cookie", "",
		"Cookie header sent with every request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sbdl in current or home directory)")

	// Transport flags
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Route requests through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Report flags
	cmd.Flags().Bool("json", false,
		"Output JSON run report (mutually exclusive with --markdown)")
	cmd.Flags().Bool("markdown", false,
		"Output Markdown run report (mutually exclusive with --json)")
	cmd.Flags().String("report", "",
		"Write the run report to specified file path (creates directories if needed)")

	// History flags
	cmd.Flags().Bool("no-history", false,
		"Do not record this run in the history database")
	cmd.Flags().String("data-dir", config.XDGDataDir(),
		"Directory holding the history database")
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getLogFileFlag retrieves the log-file flag from the command or its parent.
func getLogFileFlag(cmd *cobra.Command) string {
	logFile, err := cmd.Flags().GetString("log-file")
	if err != nil {
		logFile, err = cmd.Root().PersistentFlags().GetString("log-file")
		if err != nil {
			return ""
		}
	}
	return logFile
}

// buildConfig creates a Config from cobra command flags, positional
// arguments and the configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error

	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("retries"); err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("jobs"); err != nil {
		return nil, err
	}
	if cfg.Cookie, err = flags.GetString("cookie"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	if cfg.DBDir, err = flags.GetString("data-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.LogFile = getLogFileFlag(cmd)

	// Command specific flags
	switch cmd.Name() {
	case "crawl":
		if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
			return nil, err
		}
		if cfg.RespectRobots, err = flags.GetBool("robots"); err != nil {
			return nil, err
		}
		if len(args) > 0 {
			cfg.RootURL = args[0]
			if origin := originOf(args[0]); origin != "" {
				cfg.BaseURL = origin
			}
		}
	case "scrape":
		if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
			return nil, err
		}
		cfg.Targets = uniqueTargets(args)
		if len(args) > 0 {
			if origin := originOf(args[0]); origin != "" {
				cfg.BaseURL = origin
			}
		}
	}

	// Load the configuration file. An explicitly given path must exist;
	// otherwise a missing file just means no file-level settings.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{
			Sites: make(map[string]config.SiteConfig),
		}
	}

	cfg.ApplySiteConfig(cfg.SiteConfigs.GetSiteConfig(cfg.Host()), explicitFlags(cmd))

	return cfg, nil
}

// explicitFlags reports which overridable flags were set on the command
// line. Those win over the configuration file.
func explicitFlags(cmd *cobra.Command) map[string]bool {
	explicit := make(map[string]bool)
	for _, name := range []string{"cookie", "user-agent", "depth", "rate"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			explicit[name] = true
		}
	}
	return explicit
}

// originOf returns the scheme and host of rawURL, or "" if it has none.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// setupLogger creates the secure structured logger used by every command.
// With a log file the returned close function must be called when the
// command is done.
func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.LogFile == "" {
		return sbdllog.NewSecureLogger(os.Stderr, cfg.Verbose), func() {}, nil
	}

	if dir := filepath.Dir(cfg.LogFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return sbdllog.NewSecureFileLogger(os.Stderr, f, cfg.Verbose), func() { _ = f.Close() }, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// environment holds what a crawl or scrape run shares: the HTTP client,
// the optional history database and the optional embedded Tor daemon.
type environment struct {
	client   *fetch.Client
	history  *database.HistoryDB
	embedded *tor.EmbeddedTor
	logger   *slog.Logger
	status   io.Writer
}

// newEnvironment builds the transport, fetch client and history database
// for cfg. Close must be called when the run is over.
func newEnvironment(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*environment, error) {
	env := &environment{logger: logger, status: os.Stderr}

	proxyClient, err := env.proxyClient(ctx, cfg)
	if err != nil {
		env.Close()
		return nil, err
	}

	opts := []fetch.Option{
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithHeaders(cfg.Headers),
		fetch.WithCookie(cfg.Cookie),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithRateLimit(cfg.RequestsPerSecond),
		fetch.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		fetch.WithLogger(logger),
	}
	if proxyClient != nil {
		opts = append(opts, fetch.WithTransport(proxyClient.Transport()))
	}
	env.client = fetch.New(opts...)

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		env.history = db
		logger.Info("database opened", "path", db.Path())
	}

	return env, nil
}

// proxyClient returns a verified SOCKS5 client for the configured proxy or
// embedded Tor daemon, or nil for direct connections.
func (e *environment) proxyClient(ctx context.Context, cfg *config.Config) (*tor.Client, error) {
	var (
		client *tor.Client
		err    error
	)

	switch {
	case cfg.UseTor:
		fmt.Fprintln(e.status, "Starting embedded Tor daemon...")
		fmt.Fprintf(e.status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		e.embedded = tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := e.embedded.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		e.logger.Info("embedded Tor daemon started",
			"socksAddr", e.embedded.SocksAddr(),
			"controlAddr", e.embedded.ControlAddr(),
			"bootstrap", e.embedded.BootstrapTime(),
		)
		client, err = e.embedded.NewClient(cfg.Timeout)
	case cfg.ProxyAddress != "":
		client, err = tor.NewClient(cfg.ProxyAddress, cfg.Timeout)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy client: %w", err)
	}

	if status := client.CheckConnection(ctx, cfg.Host()); status != tor.ProxyStatusOK {
		return nil, fmt.Errorf("proxy check failed at %s: %w", client.ProxyAddress(), status.Error())
	}
	e.logger.Info("proxy connection verified", "address", client.ProxyAddress())

	return client, nil
}

// Close releases the database and stops the embedded Tor daemon.
func (e *environment) Close() {
	if e.history != nil {
		if err := e.history.Close(); err != nil {
			e.logger.Error("failed to close database", "error", err)
		}
	}
	if e.embedded != nil {
		e.logger.Info("stopping embedded Tor daemon...")
		if err := e.embedded.Stop(); err != nil {
			e.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
}

// uniqueTargets drops repeated soundboard URLs, keeping the first
// occurrence of each.
func uniqueTargets(args []string) []string {
	seen := make(map[string]struct{}, len(args))
	targets := make([]string, 0, len(args))
	for _, a := range args {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		targets = append(targets, a)
	}
	return targets
}

// pipelineFactory returns a factory for soundboard pipelines sharing this
// environment's client and history. progress may be nil.
func (e *environment) pipelineFactory(cfg *config.Config, progress model.ProgressFunc) func() *pipeline.Pipeline {
	resolver := soundboard.NewResolver(e.client, soundboard.WithLogger(e.logger))

	downloadOpts := []download.Option{
		download.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		download.WithConcurrency(cfg.Concurrency),
		download.WithLogger(e.logger),
	}
	if progress != nil {
		downloadOpts = append(downloadOpts, download.WithProgress(progress))
	}
	downloader := download.NewDownloader(e.client, downloadOpts...)

	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithPipelineOutputDir(cfg.OutputDir),
		pipeline.WithPipelineDirectoryLocks(pipeline.NewDirectoryLocks()),
	}
	if e.history != nil {
		configOpts = append(configOpts, pipeline.WithPipelineHistory(e.history))
	}

	return func() *pipeline.Pipeline {
		return pipeline.DefaultPipeline(resolver, downloader,
			[]pipeline.Option{pipeline.WithLogger(e.logger)},
			configOpts...,
		)
	}
}

// finish stamps the summary, stores it and writes the run report. runErr
// is the error the run ended with; it is returned unchanged so the command
// exits non-zero.
func (e *environment) finish(ctx context.Context, cfg *config.Config, summary *model.RunSummary, runErr error) error {
	summary.Finish(errors.Is(runErr, context.Canceled))

	if e.history != nil {
		// The run context may already be cancelled.
		if err := e.history.SaveRun(context.WithoutCancel(ctx), summary); err != nil {
			e.logger.Error("failed to save run", "id", summary.ID, "error", err)
		}
	}

	if err := outputReport(cfg, summary); err != nil {
		e.logger.Error("report failed", "error", err)
		if runErr == nil {
			return err
		}
	}

	return runErr
}

// outputReport writes the run summary in the requested format.
func outputReport(cfg *config.Config, summary *model.RunSummary) error {
	var output io.Writer = os.Stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	}

	w := newReportWriter(cfg, output)
	if cfg.ReportFile != "" && (cfg.JSONReport || cfg.MarkdownReport) {
		// The file gets the structured report, the terminal the summary.
		w = report.NewMultiWriter(w, report.NewSimpleWriter(os.Stdout, report.WithVerbose(cfg.Verbose)))
	}

	_, err := w.Write(summary)
	return err
}

// printResult writes the one-line outcome of a soundboard.
func printResult(w io.Writer, result model.SoundboardResult) {
	if result.Error != "" {
		fmt.Fprintf(w, "%s: %s\n", result.URL, result.Error)
		return
	}
	fmt.Fprintf(w, "%s: %d downloaded, %d skipped, %d failed\n",
		result.DisplayName, result.Downloaded, result.Skipped, len(result.Failed))
}

// newReportWriter picks the report format from cfg.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}
