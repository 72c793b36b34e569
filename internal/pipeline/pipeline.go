package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/sbdl/internal/model"
)

// Run carries one soundboard through the pipeline. Each step reads what
// earlier steps stored and adds its own output.
type Run struct {
	// URL is the soundboard page URL.
	URL string

	// Soundboard is set by the resolve step.
	Soundboard *model.Soundboard

	// Directory is the soundboard's output directory, set by the reconcile
	// step.
	Directory string

	// Job lists the identifiers still to download, set by the reconcile step.
	Job []string

	// Skipped is the number of identifiers already on disk.
	Skipped int

	// Download is set by the download step. Nil when nothing was missing.
	Download *model.DownloadResult

	// Err is the error that stopped the pipeline, if any.
	Err error

	// PerformedSteps lists the names of the steps that ran.
	PerformedSteps []string

	// unlock releases the output directory lock taken by the reconcile step.
	unlock func()

	startedAt time.Time
}

// NewRun starts a Run for the soundboard at url.
func NewRun(url string) *Run {
	return &Run{URL: url, startedAt: time.Now()}
}

// Result condenses the run into a model.SoundboardResult.
func (r *Run) Result() model.SoundboardResult {
	res := model.SoundboardResult{
		URL:      r.URL,
		Skipped:  r.Skipped,
		Duration: time.Since(r.startedAt),
	}
	if r.Soundboard != nil {
		res.DisplayName = r.Soundboard.DisplayName
		res.ManifestSize = len(r.Soundboard.Manifest)
	}
	if r.Download != nil {
		res.Downloaded = r.Download.Downloaded()
		res.Failed = r.Download.FailedIdentifiers()
		res.Bytes = r.Download.Bytes
	}
	if r.Err != nil {
		res.Error = r.Err.Error()
	}
	return res
}

// Step is one stage of the soundboard pipeline.
type Step interface {
	// Do executes the step. A returned error stops the pipeline.
	Do(ctx context.Context, run *Run) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes its steps in order for one soundboard.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence. Cancellation is checked before each
// step; steps handle it themselves while running. A directory lock taken by
// a step is released when Execute returns.
func (p *Pipeline) Execute(ctx context.Context, run *Run) error {
	defer func() {
		if run.unlock != nil {
			run.unlock()
			run.unlock = nil
		}
	}()

	p.logger.Debug("executing pipeline", "url", run.URL, "steps", p.StepNames())

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled", "step", step.Name(), "url", run.URL, "reason", err)
			if run.Err == nil {
				run.Err = err
			}
			return err
		}

		p.logger.Debug("executing step", "step", step.Name(), "url", run.URL)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "url", run.URL, "error", err)

			if run.Err == nil {
				run.Err = err
			}
			return err
		}

		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}

	return run.Err
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
