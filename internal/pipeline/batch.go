package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sbdl/internal/model"
)

// BatchProcessor runs the soundboard pipeline for several URLs at once.
// Each URL gets a fresh pipeline from the factory. Pipelines resolving to
// the same output directory wait for each other in the reconcile step.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each soundboard.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of soundboards processed at once.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent soundboards.
// Default is 1.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     1,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatchWithCallback runs every URL and calls callback as each one
// finishes. A failing soundboard does not stop the others; its error is in
// its result. The returned error is only set when ctx was cancelled. The
// callback runs on the worker goroutine and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	urls []string,
	callback func(result model.SoundboardResult, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_soundboards", len(urls),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bp.logger.Debug("processing soundboard", "url", u, "index", i+1, "total", len(urls))

			run := NewRun(u)
			if err := bp.pipelineFactory().Execute(gctx, run); err != nil {
				bp.logger.Warn("soundboard failed", "url", u, "error", err)
			}
			callback(run.Result(), i)

			return gctx.Err()
		})
	}

	err := g.Wait()

	bp.logger.Info("batch processing complete",
		"total_soundboards", len(urls),
		"elapsed", time.Since(startTime),
	)

	return err
}
