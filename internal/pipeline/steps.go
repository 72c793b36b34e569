package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"

	"github.com/nao1215/sbdl/internal/config"
	"github.com/nao1215/sbdl/internal/download"
	"github.com/nao1215/sbdl/internal/model"
)

// Resolver turns a soundboard URL into a model.Soundboard.
// *soundboard.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, pageURL string) (*model.Soundboard, error)
}

// Downloader fetches a reconciled job. *download.Downloader implements it.
type Downloader interface {
	Download(ctx context.Context, job model.DownloadJob) (*model.DownloadResult, error)
}

// HistoryStore persists soundboards and the artifacts written for them.
// *database.DB implements it.
type HistoryStore interface {
	UpsertSoundboard(ctx context.Context, sb *model.Soundboard) error
	RecordArtifact(ctx context.Context, soundboardURL string, a model.Artifact) error
}

// ResolveStep fetches the soundboard page and its manifest.
type ResolveStep struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewResolveStep creates a resolve step.
func NewResolveStep(resolver Resolver, logger *slog.Logger) *ResolveStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResolveStep{resolver: resolver, logger: logger}
}

// Name returns the step name.
func (s *ResolveStep) Name() string {
	return "resolve"
}

// Do resolves run.URL into run.Soundboard.
func (s *ResolveStep) Do(ctx context.Context, run *Run) error {
	sb, err := s.resolver.Resolve(ctx, run.URL)
	if err != nil {
		return err
	}
	run.Soundboard = sb
	return nil
}

// ReconcileStep compares the manifest with the files already on disk. It
// locks the soundboard directory for the rest of the run.
type ReconcileStep struct {
	outputDir string
	locks     *DirectoryLocks
	logger    *slog.Logger
}

// NewReconcileStep creates a reconcile step writing below outputDir. A nil
// locks uses the process-wide set.
func NewReconcileStep(outputDir string, locks *DirectoryLocks, logger *slog.Logger) *ReconcileStep {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = sharedDirectoryLocks
	}
	return &ReconcileStep{outputDir: outputDir, locks: locks, logger: logger}
}

// Name returns the step name.
func (s *ReconcileStep) Name() string {
	return "reconcile"
}

// Do sets run.Directory, run.Job and run.Skipped.
func (s *ReconcileStep) Do(_ context.Context, run *Run) error {
	if run.Soundboard == nil {
		return nil
	}

	run.Directory = filepath.Join(s.outputDir, directoryName(run.Soundboard))
	if run.unlock == nil {
		run.unlock = s.locks.Lock(run.Directory)
	}

	job, skipped, err := download.Reconcile(run.Directory, run.Soundboard.Manifest)
	if err != nil {
		return err
	}
	run.Job = job
	run.Skipped = skipped

	if skipped > 0 {
		s.logger.Info("skipped sounds, files already exist", "soundboard", run.Soundboard.DisplayName, "skipped", skipped)
	}
	return nil
}

// directoryName is the display name, or the last URL path segment when the
// page had no usable title. Names that would leave the output root are
// treated as missing.
func directoryName(sb *model.Soundboard) string {
	if isLocalName(sb.DisplayName) {
		return sb.DisplayName
	}
	if u, err := url.Parse(sb.URL); err == nil {
		if base := path.Base(u.Path); isLocalName(base) {
			return base
		}
	}
	return "unnamed"
}

// isLocalName reports whether name is a single path element below its
// parent directory.
func isLocalName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.IsLocal(name) && filepath.Base(name) == name
}

// DownloadStep fetches every identifier the reconcile step left in the job.
type DownloadStep struct {
	downloader Downloader
	logger     *slog.Logger
}

// NewDownloadStep creates a download step.
func NewDownloadStep(downloader Downloader, logger *slog.Logger) *DownloadStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadStep{downloader: downloader, logger: logger}
}

// Name returns the step name.
func (s *DownloadStep) Name() string {
	return "download"
}

// Do downloads run.Job. An empty job is not handed to the downloader.
func (s *DownloadStep) Do(ctx context.Context, run *Run) error {
	if run.Soundboard == nil || len(run.Job) == 0 {
		return nil
	}

	s.logger.Info("downloading", "soundboard", run.Soundboard.DisplayName, "dir", run.Directory, "count", len(run.Job))

	result, err := s.downloader.Download(ctx, model.DownloadJob{
		Soundboard:       run.Soundboard.DisplayName,
		Directory:        run.Directory,
		AudioURLTemplate: run.Soundboard.AudioURLTemplate,
		Manifest:         run.Job,
	})
	run.Download = result
	if err != nil {
		return fmt.Errorf("download %s: %w", run.Soundboard.DisplayName, err)
	}
	return nil
}

// RecordStep writes the soundboard and its new artifacts to the history
// database. Storage failures are logged and do not fail the run.
type RecordStep struct {
	store  HistoryStore
	logger *slog.Logger
}

// NewRecordStep creates a record step.
func NewRecordStep(store HistoryStore, logger *slog.Logger) *RecordStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do stores run.Soundboard and every artifact in run.Download.
func (s *RecordStep) Do(ctx context.Context, run *Run) error {
	if run.Soundboard == nil {
		return nil
	}

	if err := s.store.UpsertSoundboard(ctx, run.Soundboard); err != nil {
		s.logger.Warn("failed to save soundboard", "url", run.URL, "error", err)
		return nil
	}

	if run.Download == nil {
		return nil
	}
	for _, a := range run.Download.Artifacts {
		if err := s.store.RecordArtifact(ctx, run.URL, a); err != nil {
			s.logger.Warn("failed to save artifact", "url", run.URL, "identifier", a.Identifier, "error", err)
		}
	}
	return nil
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// OutputDir is the root directory for soundboard directories.
	OutputDir string

	// Store receives soundboards and artifacts. Nil disables recording.
	Store HistoryStore

	// Locks serialises pipelines sharing a soundboard directory. Nil uses
	// the process-wide set.
	Locks *DirectoryLocks
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithPipelineOutputDir sets the output root.
func WithPipelineOutputDir(dir string) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.OutputDir = dir
	}
}

// WithPipelineHistory enables the record step.
func WithPipelineHistory(store HistoryStore) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Store = store
	}
}

// WithPipelineDirectoryLocks sets the directory lock set shared by the
// pipelines of one run.
func WithPipelineDirectoryLocks(locks *DirectoryLocks) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Locks = locks
	}
}

// DefaultPipeline creates the standard soundboard pipeline:
// resolve, reconcile, download and, with a history store, record.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithPipelineOutputDir, etc).
func DefaultPipeline(resolver Resolver, downloader Downloader, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{
		OutputDir: config.DefaultOutputDir,
	}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p.AddSteps(
		NewResolveStep(resolver, p.logger),
		NewReconcileStep(cfg.OutputDir, cfg.Locks, p.logger),
		NewDownloadStep(downloader, p.logger),
	)
	if cfg.Store != nil {
		p.AddStep(NewRecordStep(cfg.Store, p.logger))
	}

	return p
}
