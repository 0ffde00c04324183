// Package pipeline turns a plain-text document into one narrated audio file
// and its chapter timestamps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakdoc/internal/audio"
	"github.com/dgnsrekt/speakdoc/internal/config"
	"github.com/dgnsrekt/speakdoc/internal/document"
	"github.com/dgnsrekt/speakdoc/internal/ssml"
	"github.com/dgnsrekt/speakdoc/internal/synth"
	"github.com/dgnsrekt/speakdoc/internal/toc"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Pipeline runs documents through sectioning, chunking, synthesis,
// assembly and TOC construction.
type Pipeline struct {
	cfg     config.Config
	backend synth.Backend
	runner  audio.Runner
	logger  *log.Logger
	workDir string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger; runs log through a sub-logger tagged with
// the run ID.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithWorkDir sets the parent directory for per-run part files. The
// default is the system temp directory.
func WithWorkDir(dir string) Option {
	return func(p *Pipeline) { p.workDir = dir }
}

// WithRunner sets the runner used for ffmpeg and ffprobe.
func WithRunner(r audio.Runner) Option {
	return func(p *Pipeline) { p.runner = r }
}

// New creates a pipeline. cfg is expected to be validated.
func New(cfg config.Config, backend synth.Backend, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		backend: backend,
		runner:  audio.ExecRunner{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result describes a completed run.
type Result struct {
	RunID   string
	Entries []toc.Entry
	Output  string
	Chunks  int

	// Duration is the total length of the audio in seconds.
	Duration float64

	// Size is the output file size in bytes.
	Size int64
}

// Run converts text into output. It either writes the complete file and
// returns the TOC, or fails with a *StageError and leaves output as it was.
// The audio is assembled next to output and renamed over it only once the
// TOC is built. Part files are removed on every path.
func (p *Pipeline) Run(ctx context.Context, text, output string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, stageError(StageInput, ErrEmptyInput)
	}
	if output == "" {
		return Result{}, stageError(StageInput, errors.New("output path is required"))
	}
	format, err := p.cfg.OutputFormat(output)
	if err != nil {
		return Result{}, stageError(StageInput, err)
	}

	runID := uuid.NewString()
	logger := p.logger.With("run", runID[:8])
	start := time.Now()

	sections := document.SplitSections(text)
	splitter := document.NewSplitter(ssml.NewAnnotator(p.cfg.SSML), p.cfg.Block)
	chunks, counts := splitter.Chunk(sections)
	if len(chunks) == 0 {
		return Result{}, stageError(StageInput, ErrEmptyInput)
	}
	logger.Info("Document split", "sections", len(sections), "chunks", len(chunks))
	if logger.GetLevel() <= log.DebugLevel {
		for _, c := range chunks {
			if err := ssml.Validate(c.Markup); err != nil {
				logger.Warn("Chunk markup is not well-formed", "chunk", c.Index, "error", err)
			}
		}
	}

	workDir, err := os.MkdirTemp(p.workDir, "speakdoc-"+runID[:8]+"-")
	if err != nil {
		return Result{}, stageError(StageSynthesize, fmt.Errorf("unable to create work directory: %w", err))
	}

	stem, ext := partStem(output, format)
	jobs := synth.NewJobs(chunks, func(i int) string {
		return filepath.Join(workDir, PartName(stem, i, ext))
	})
	defer cleanup(logger, workDir, jobs)

	orchestrator := synth.NewOrchestrator(p.backend, p.cfg.OrchestratorOptions(format), logger)
	parts, err := orchestrator.Synthesize(ctx, jobs)
	if err != nil {
		return Result{}, stageError(StageSynthesize, err)
	}
	logger.Info("Chunks synthesized", "parts", len(parts), "elapsed", time.Since(start).Round(time.Millisecond))

	staged := stagingPath(output, stem+"-"+runID[:8]+ext)
	defer removeStaged(logger, staged)

	durations, err := p.measureAndAssemble(ctx, parts, staged)
	if err != nil {
		return Result{}, err
	}

	entries, err := toc.Build(sections, counts, durations)
	if err != nil {
		return Result{}, stageError(StageTOC, err)
	}

	if err := os.Rename(staged, output); err != nil {
		return Result{}, stageError(StageAssemble, fmt.Errorf("unable to move audio into place: %w", err))
	}

	res := Result{
		RunID:   runID,
		Entries: entries,
		Output:  output,
		Chunks:  len(chunks),
	}
	for _, d := range durations {
		res.Duration += d
	}
	if info, err := os.Stat(output); err == nil {
		res.Size = info.Size()
	}

	logger.Info("Audio written",
		"output", output,
		"size", humanize.Bytes(uint64(res.Size)), //nolint:gosec
		"length", toc.FormatTimestamp(res.Duration),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// measureAndAssemble probes the parts while ffmpeg joins them.
func (p *Pipeline) measureAndAssemble(ctx context.Context, parts []string, output string) ([]float64, error) {
	prober := audio.NewProber(p.runner, p.cfg.FFprobe)
	assembler := audio.NewAssembler(p.runner, p.cfg.FFmpeg, p.cfg.Codec)

	var durations []float64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		durations, err = prober.ProbeAll(ctx, parts)
		return stageError(StageProbe, err)
	})
	g.Go(func() error {
		return stageError(StageAssemble, assembler.Assemble(ctx, parts, output))
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return durations, nil
}

// PartName names the part file for chunk index of an output with the given
// stem and extension.
func PartName(stem string, index int, ext string) string {
	return fmt.Sprintf("%s-%04d%s", stem, index, ext)
}

func partStem(output, format string) (stem, ext string) {
	ext = filepath.Ext(output)
	stem = strings.TrimSuffix(filepath.Base(output), ext)
	if ext == "" {
		switch format {
		case "ogg_vorbis":
			ext = ".ogg"
		default:
			ext = ".mp3"
		}
	}
	return stem, ext
}

// cleanup removes every planned part file and the work directory. Failures
// are logged only.
func cleanup(logger *log.Logger, workDir string, jobs []*synth.Job) {
	for _, job := range jobs {
		if err := os.Remove(job.OutputPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Unable to remove part file", "path", job.OutputPath, "error", err)
		}
	}
	if err := os.RemoveAll(workDir); err != nil {
		logger.Warn("Unable to remove work directory", "path", workDir, "error", err)
	}
}

// stagingPath is a hidden file named name beside output. Staying in the
// same directory keeps the final rename on one filesystem.
func stagingPath(output, name string) string {
	return filepath.Join(filepath.Dir(output), "."+name)
}

func removeStaged(logger *log.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Unable to remove staged output", "path", path, "error", err)
	}
}
