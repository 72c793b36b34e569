package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/sbdl/internal/model"
)

// Dispatcher runs the soundboard pipeline for every soundboard the crawler
// discovers and adds the outcome to a RunSummary. It implements
// crawler.Dispatcher.
type Dispatcher struct {
	pipelineFactory func() *Pipeline
	summary         *model.RunSummary
	onResult        func(model.SoundboardResult)
	logger          *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithResultHook sets a function called after each soundboard finishes.
func WithResultHook(fn func(model.SoundboardResult)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a Dispatcher that builds a pipeline per soundboard
// with pipelineFactory and records results in summary.
func NewDispatcher(pipelineFactory func() *Pipeline, summary *model.RunSummary, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pipelineFactory: pipelineFactory,
		summary:         summary,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the pipeline for soundboardURL to completion. The result is
// recorded even when the pipeline fails.
func (d *Dispatcher) Dispatch(ctx context.Context, soundboardURL string) error {
	run := NewRun(soundboardURL)
	err := d.pipelineFactory().Execute(ctx, run)

	result := run.Result()
	d.summary.AddSoundboard(result)
	if d.onResult != nil {
		d.onResult(result)
	}

	d.logger.Debug("soundboard finished",
		"url", soundboardURL,
		"downloaded", result.Downloaded,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
	)
	return err
}
