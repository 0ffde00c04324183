package audio

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Prober measures audio durations with ffprobe.
type Prober struct {
	runner  Runner
	ffprobe string
}

// NewProber creates a prober. An empty ffprobe falls back to "ffprobe".
func NewProber(runner Runner, ffprobe string) *Prober {
	if runner == nil {
		runner = ExecRunner{}
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Prober{runner: runner, ffprobe: ffprobe}
}

// Probe returns the duration of path in seconds.
func (p *Prober) Probe(ctx context.Context, path string) (float64, error) {
	out, err := p.runner.Run(ctx, p.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, err
	}
	return parseDuration(string(out))
}

// ProbeAll probes every path concurrently and returns the durations in the
// same order.
func (p *Prober) ProbeAll(ctx context.Context, paths []string) ([]float64, error) {
	durations := make([]float64, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			d, err := p.Probe(ctx, path)
			if err != nil {
				return fmt.Errorf("probe %s: %w", path, err)
			}
			durations[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return durations, nil
}

func parseDuration(output string) (float64, error) {
	s := strings.TrimSpace(output)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", output, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %v", d)
	}
	return d, nil
}
