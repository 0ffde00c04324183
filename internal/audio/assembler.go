package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultCodec stream-copies parts without re-encoding.
const DefaultCodec = "copy"

// Assembler joins part files into one audio file with ffmpeg's concat
// demuxer.
type Assembler struct {
	runner Runner
	ffmpeg string
	codec  string
}

// NewAssembler creates an assembler. Empty ffmpeg and codec fall back to
// "ffmpeg" and DefaultCodec.
func NewAssembler(runner Runner, ffmpeg, codec string) *Assembler {
	if runner == nil {
		runner = ExecRunner{}
	}
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if codec == "" {
		codec = DefaultCodec
	}
	return &Assembler{runner: runner, ffmpeg: ffmpeg, codec: codec}
}

// Assemble concatenates parts, in order, into output. The manifest is
// written next to the first part and removed afterwards.
func (a *Assembler) Assemble(ctx context.Context, parts []string, output string) error {
	if len(parts) == 0 {
		return errors.New("no parts to assemble")
	}

	manifest, err := writeManifest(filepath.Dir(parts[0]), parts)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(manifest); err != nil && !os.IsNotExist(err) {
			log.Warn("Unable to remove concat manifest", "path", manifest, "error", err)
		}
	}()

	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c:a", a.codec,
		output,
	}
	log.Debug("Assembling audio", "parts", len(parts), "output", output, "codec", a.codec)
	if _, err := a.runner.Run(ctx, a.ffmpeg, args...); err != nil {
		return err
	}
	return nil
}

// writeManifest writes a concat demuxer list naming each part by absolute
// path.
func writeManifest(dir string, parts []string) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("failed to resolve part path: %w", err)
		}
		b.WriteString("file '")
		b.WriteString(quoteManifestPath(abs))
		b.WriteString("'\n")
	}

	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create concat manifest: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat manifest: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat manifest: %w", err)
	}
	return f.Name(), nil
}

// quoteManifestPath escapes single quotes for ffmpeg's concat syntax.
func quoteManifestPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
