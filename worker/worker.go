// CLAUDE:SUMMARY Worker loop: poll received jobs, claim via conditional update, extract, analyze, write terminal status.
// Package worker drives claimed jobs through extraction and analysis.
//
// Multiple worker instances may run against the same job store; safety relies
// solely on the conditional claim transition. A lost claim race is a no-op,
// not an error.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Haroldtrapier/sturgeon-ai-sub000/blobstore"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/docpipe"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/jobstore"
)

// Analysis is the structured-analysis capability the worker depends on.
type Analysis interface {
	Analyze(ctx context.Context, text string) ([]byte, error)
}

// Options configures the loop.
type Options struct {
	// PollInterval is the delay between poll cycles. Default: 2s.
	PollInterval time.Duration
	// BatchSize bounds how many received jobs one cycle pulls. Default: 10.
	BatchSize int
	// ErrorBackoff is the longer pause after a failed poll cycle, e.g. the
	// job store being down. Default: 30s.
	ErrorBackoff time.Duration
	// InfraRetries bounds in-pass retries of transient infrastructure
	// failures (blob or job store unavailable mid-step). Default: 3.
	InfraRetries int
	// InfraRetryBase is the first retry delay; it doubles per attempt.
	// Default: 500ms.
	InfraRetryBase time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = 30 * time.Second
	}
	if o.InfraRetries <= 0 {
		o.InfraRetries = 3
	}
	if o.InfraRetryBase <= 0 {
		o.InfraRetryBase = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Worker is one loop instance.
type Worker struct {
	jobs     *jobstore.Store
	blobs    *blobstore.Store
	analysis Analysis
	opts     Options
}

// New creates a Worker. Run starts it.
func New(jobs *jobstore.Store, blobs *blobstore.Store, analysis Analysis, opts Options) *Worker {
	opts.defaults()
	return &Worker{jobs: jobs, blobs: blobs, analysis: analysis, opts: opts}
}

// Run polls until ctx is cancelled. On cancellation it stops claiming new
// jobs; a job already claimed finishes its current pass before Run returns.
func (w *Worker) Run(ctx context.Context) {
	log := w.opts.Logger
	log.Info("worker started",
		"poll", w.opts.PollInterval, "batch", w.opts.BatchSize)

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return
		case <-ticker.C:
			if err := w.cycle(ctx); err != nil {
				log.Error("poll cycle failed, backing off",
					"error", err, "backoff", w.opts.ErrorBackoff)
				select {
				case <-ctx.Done():
					log.Info("worker stopped")
					return
				case <-time.After(w.opts.ErrorBackoff):
				}
			}
		}
	}
}

// cycle runs one poll pass. Per-job errors are captured into the job record
// and never returned; only store-level poll failures propagate.
func (w *Worker) cycle(ctx context.Context) error {
	batch, err := w.jobs.ListReceived(ctx, w.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("list received: %w", err)
	}

	for _, j := range batch {
		if ctx.Err() != nil {
			return nil
		}
		claimed, err := w.jobs.Claim(ctx, j.ID)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		if !claimed {
			continue // another worker won the race
		}
		// A claimed job finishes its pass even if shutdown starts meanwhile,
		// so it never lingers in processing for want of a terminal write.
		w.process(context.WithoutCancel(ctx), j)
	}
	return nil
}

// process drives one claimed job to a terminal status. Every outcome ends in
// exactly one terminal write; errors inside are captured, never propagated.
func (w *Worker) process(ctx context.Context, j *jobstore.Job) {
	log := w.opts.Logger.With("job_id", j.ID, "format", j.Format)
	start := time.Now()

	content, err := w.withInfraRetry(ctx, func() ([]byte, error) {
		return w.blobs.Get(j.BlobKey)
	})
	if err != nil {
		// A key with no blob behind it can never succeed; re-submitting such
		// a job is pointless, so it is not an infrastructure failure.
		if errors.Is(err, blobstore.ErrNotFound) {
			log.Error("stored content missing", "blob_key", j.BlobKey)
			w.fail(ctx, j.ID, jobstore.FailExtraction,
				fmt.Sprintf("stored content missing under key %s", j.BlobKey))
			return
		}
		log.Error("blob fetch failed", "error", err)
		w.fail(ctx, j.ID, jobstore.FailInfra,
			fmt.Sprintf("content store unavailable: %v", err))
		return
	}

	ex, err := docpipe.Extract(ctx, content, docpipe.Format(j.Format))
	if err != nil {
		log.Warn("extraction failed", "error", err)
		w.fail(ctx, j.ID, jobstore.FailExtraction, err.Error())
		return
	}

	_, err = w.withInfraRetry(ctx, func() ([]byte, error) {
		return nil, w.jobs.SetExtracted(ctx, j.ID, ex.Text, ex.PageCount, ex.WordCount)
	})
	if err != nil {
		log.Error("persisting extracted text failed", "error", err)
		w.fail(ctx, j.ID, jobstore.FailInfra,
			fmt.Sprintf("job store unavailable: %v", err))
		return
	}

	result, err := w.analysis.Analyze(ctx, ex.Text)
	if err != nil {
		log.Warn("analysis failed", "error", err)
		w.fail(ctx, j.ID, jobstore.FailAnalysis, err.Error())
		return
	}

	_, err = w.withInfraRetry(ctx, func() ([]byte, error) {
		return nil, w.jobs.Complete(ctx, j.ID, result)
	})
	if err != nil {
		log.Error("completing job failed", "error", err)
		w.fail(ctx, j.ID, jobstore.FailInfra,
			fmt.Sprintf("job store unavailable: %v", err))
		return
	}

	log.Info("job completed",
		"pages", ex.PageCount, "words", ex.WordCount,
		"elapsed_ms", time.Since(start).Milliseconds())
}

// withInfraRetry retries a step that failed on infrastructure, with bounded
// attempts and exponential backoff, inside the same pass.
func (w *Worker) withInfraRetry(ctx context.Context, step func() ([]byte, error)) ([]byte, error) {
	delay := w.opts.InfraRetryBase
	var lastErr error
	for attempt := 0; attempt <= w.opts.InfraRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		out, err := step()
		if err == nil {
			return out, nil
		}
		// Missing rows and missing blobs are permanent, not transient.
		if errors.Is(err, jobstore.ErrNotFound) || errors.Is(err, blobstore.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("after %d attempts: %w", w.opts.InfraRetries+1, lastErr)
}

// fail writes the terminal failed status. A failure here is logged and
// dropped; the job surfaces later through the staleness query.
func (w *Worker) fail(ctx context.Context, id, code, message string) {
	if message == "" {
		message = "unknown error"
	}
	if err := w.jobs.Fail(ctx, id, code, message); err != nil {
		w.opts.Logger.Error("terminal status write failed",
			"job_id", id, "code", code, "error", err)
	}
}
