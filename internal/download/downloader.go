package download

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sbdl/internal/fetch"
	"github.com/nao1215/sbdl/internal/model"
)

// Client is the subset of fetch.Client the downloader needs.
type Client interface {
	Download(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// Downloader fetches every identifier of a DownloadJob into its directory.
type Downloader struct {
	client      Client
	maxRetries  int
	backoff     time.Duration
	concurrency int
	progress    model.ProgressFunc
	logger      *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithRetries sets how often a failed item is retried and the base backoff
// between attempts.
func WithRetries(n int, backoff time.Duration) Option {
	return func(d *Downloader) {
		d.maxRetries = n
		d.backoff = backoff
	}
}

// WithConcurrency sets how many items are downloaded at once.
// Values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		d.concurrency = max(n, 1)
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn model.ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// NewDownloader creates a Downloader that fetches through client.
func NewDownloader(client Client, opts ...Option) *Downloader {
	d := &Downloader{
		client:      client,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download fetches every identifier in job. Items that still fail after
// all retries are recorded in the result's Failed map and do not stop the
// batch. Only context cancellation aborts, returning the partial result
// together with ctx.Err().
func (d *Downloader) Download(ctx context.Context, job model.DownloadJob) (*model.DownloadResult, error) {
	result := model.NewDownloadResult()
	total := len(job.Manifest)
	if total == 0 {
		return result, nil
	}

	var (
		mu        sync.Mutex
		completed int
	)

	finish := func(id string, artifact *model.Artifact, err error) {
		mu.Lock()
		defer mu.Unlock()

		completed++
		if err != nil {
			result.Failed[id] = err.Error()
		} else {
			result.Artifacts = append(result.Artifacts, *artifact)
			result.Bytes += artifact.Size
		}

		if d.progress != nil {
			d.progress(model.ProgressEvent{
				Soundboard: job.Soundboard,
				Identifier: id,
				Completed:  completed,
				Total:      total,
				Err:        err,
			})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for _, id := range job.Manifest {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			artifact, err := d.fetchWithRetry(gctx, job, id)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err != nil {
				d.logger.Warn("download failed", "soundboard", job.Soundboard, "identifier", id, "error", err)
			}
			finish(id, artifact, err)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Downloader) fetchWithRetry(ctx context.Context, job model.DownloadJob, id string) (*model.Artifact, error) {
	rawURL := job.AudioURL(id)

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			delay := fetch.Backoff(d.backoff, attempt-1)
			d.logger.Debug("retrying download", "url", rawURL, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := fetch.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		artifact, err := d.fetchOne(ctx, rawURL, job.Directory, id)
		if err == nil {
			return artifact, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var fsErr *FilesystemError
		if errors.As(err, &fsErr) || !fetch.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// fetchOne streams rawURL into a temp file next to the artifact and renames
// it into place once the body is complete.
func (d *Downloader) fetchOne(ctx context.Context, rawURL, dir, id string) (*model.Artifact, error) {
	tmp, err := os.CreateTemp(dir, "."+model.ArtifactName(id)+".*.part")
	if err != nil {
		return nil, &FilesystemError{Op: "create", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()         //nolint:errcheck // already failing
			_ = os.Remove(tmpPath) //nolint:errcheck // best effort cleanup
		}
	}()

	h := newChecksum()
	n, err := d.client.Download(ctx, rawURL, io.MultiWriter(tmp, h))
	if err != nil {
		return nil, err
	}

	if err := tmp.Close(); err != nil {
		return nil, &FilesystemError{Op: "close", Path: tmpPath, Err: err}
	}

	path := ArtifactPath(dir, id)
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, &FilesystemError{Op: "rename", Path: path, Err: err}
	}
	committed = true

	d.logger.Debug("downloaded", "url", rawURL, "path", path, "bytes", n)
	return &model.Artifact{
		Identifier:   id,
		Path:         path,
		Size:         n,
		Checksum:     hex.EncodeToString(h.Sum(nil)),
		DownloadedAt: time.Now(),
	}, nil
}

func newChecksum() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// New256 only fails for keys longer than 64 bytes.
		panic(fmt.Sprintf("blake2b: %v", err))
	}
	return h
}
