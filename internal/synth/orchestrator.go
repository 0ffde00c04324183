package synth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakdoc/internal/document"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultRetries is the number of attempts made per chunk.
const DefaultRetries = 8

// Job is the synthesis of one chunk into one part file.
type Job struct {
	Chunk      document.Chunk
	OutputPath string

	// Attempts counts the requests made so far.
	Attempts int
}

// NewJobs creates one job per chunk, naming each part file with path.
func NewJobs(chunks []document.Chunk, path func(index int) string) []*Job {
	jobs := make([]*Job, len(chunks))
	for i, c := range chunks {
		jobs[i] = &Job{Chunk: c, OutputPath: path(c.Index)}
	}
	return jobs
}

// Options configures an Orchestrator.
type Options struct {
	// Retries is the maximum number of attempts per chunk.
	Retries int

	// RateLimit caps backend requests per second across all jobs.
	// Zero means unlimited.
	RateLimit float64

	// RequestTimeout bounds a single attempt. Zero means no timeout.
	RequestTimeout time.Duration

	// Template supplies every request field except Text.
	Template Request
}

// Orchestrator fans chunks out to a backend.
type Orchestrator struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewOrchestrator creates an orchestrator. A nil logger uses the default.
func NewOrchestrator(backend Backend, opts Options, logger *log.Logger) *Orchestrator {
	if opts.Retries < 1 {
		opts.Retries = DefaultRetries
	}
	if logger == nil {
		logger = log.Default()
	}

	o := &Orchestrator{
		backend: backend,
		opts:    opts,
		logger:  logger,
	}
	if opts.RateLimit > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return o
}

// Synthesize runs every job concurrently and returns the part file paths in
// chunk order. The first job to exhaust its retries cancels the others and
// its error is returned; there is no partial result.
func (o *Orchestrator) Synthesize(ctx context.Context, jobs []*Job) ([]string, error) {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			return o.run(ctx, job)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	paths := make([]string, len(jobs))
	for i, job := range jobs {
		paths[i] = job.OutputPath
	}
	return paths, nil
}

func (o *Orchestrator) run(ctx context.Context, job *Job) error {
	req := o.opts.Template
	req.Text = job.Chunk.Markup

	var history []*BackendRequestError
	for job.Attempts < o.opts.Retries {
		if err := ctx.Err(); err != nil {
			return err
		}

		job.Attempts++
		start := time.Now()
		audio, err := o.attempt(ctx, req)
		if err == nil {
			if err := os.WriteFile(job.OutputPath, audio, 0o644); err != nil { //nolint:gosec
				return fmt.Errorf("unable to write part file: %w", err)
			}
			o.logger.Debug("Chunk synthesized",
				"chunk", job.Chunk.Index,
				"attempts", job.Attempts,
				"bytes", len(audio),
				"duration", time.Since(start))
			return nil
		}

		// another job already failed
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reqErr := &BackendRequestError{Chunk: job.Chunk.Index, Attempt: job.Attempts, Err: err}
		history = append(history, reqErr)
		o.logger.Warn("Synthesis attempt failed",
			"chunk", job.Chunk.Index,
			"attempt", job.Attempts,
			"of", o.opts.Retries,
			"error", err)
	}

	o.logger.Error("Chunk synthesis failed",
		"chunk", job.Chunk.Index,
		"attempts", job.Attempts,
		"markup", job.Chunk.Markup)
	return &RetryExhaustedError{Chunk: job.Chunk.Index, Attempts: job.Attempts, Errors: history}
}

func (o *Orchestrator) attempt(ctx context.Context, req Request) ([]byte, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}
	}

	if o.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
		defer cancel()
	}

	audio, err := o.backend.Synthesize(log.WithContext(ctx, o.logger), req)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}
