package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakdoc/internal/audio"
	"github.com/dgnsrekt/speakdoc/internal/config"
	"github.com/dgnsrekt/speakdoc/internal/synth"
)

// recordingBackend returns each request's markup as its audio.
type recordingBackend struct {
	mu      sync.Mutex
	markups []string
	fail    bool
}

func (b *recordingBackend) Synthesize(_ context.Context, req synth.Request) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markups = append(b.markups, req.Text)
	if b.fail {
		return nil, errors.New("service unavailable")
	}
	return []byte(req.Text), nil
}

func (b *recordingBackend) requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string(nil), b.markups...)
	return out
}

// toolRunner stands in for ffmpeg and ffprobe. Probing reports one second
// per 100 bytes; assembly concatenates the manifest's files.
type toolRunner struct {
	mu          sync.Mutex
	assembleErr error
	probeErr    error
	probed      []string
	partsSeen   []string
}

func (r *toolRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	switch name {
	case "ffprobe":
		path := args[len(args)-1]
		r.mu.Lock()
		r.probed = append(r.probed, path)
		r.mu.Unlock()
		if r.probeErr != nil {
			return nil, r.probeErr
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		return []byte(fmt.Sprintf("%f\n", float64(info.Size())/100)), nil
	case "ffmpeg":
		if r.assembleErr != nil {
			// leave a partial file behind like a crashed ffmpeg would
			_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
			return nil, r.assembleErr
		}
		return nil, r.concat(args)
	}
	return nil, fmt.Errorf("unexpected command %s", name)
}

func (r *toolRunner) concat(args []string) error {
	var manifest string
	for i, a := range args {
		if a == "-i" {
			manifest = args[i+1]
		}
	}
	f, err := os.Open(manifest)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck

	var out bytes.Buffer
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSuffix(strings.TrimPrefix(scanner.Text(), "file '"), "'")
		data, err := os.ReadFile(line)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.partsSeen = append(r.partsSeen, line)
		r.mu.Unlock()
		out.Write(data)
	}
	return os.WriteFile(args[len(args)-1], out.Bytes(), 0o644)
}

func newTestPipeline(t *testing.T, cfg config.Config, backend synth.Backend, runner audio.Runner) (*Pipeline, string) {
	t.Helper()
	work := t.TempDir()
	p := New(cfg, backend,
		WithRunner(runner),
		WithWorkDir(work),
		WithLogger(log.New(io.Discard)))
	return p, work
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%s not cleaned up: %d entries left", dir, len(entries))
	}
}

func TestRunQuotesNewlinesAndHeading(t *testing.T) {
	backend := &recordingBackend{}
	runner := &toolRunner{}
	p, work := newTestPipeline(t, config.DefaultConfig(), backend, runner)
	output := filepath.Join(t.TempDir(), "book.mp3")

	res, err := p.Run(context.Background(), "Hello \"world\"\n\n== Intro ==\nThis is it.", output)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(res.Entries) != 2 {
		t.Fatalf("len(Entries) = %d, want 2", len(res.Entries))
	}
	if res.Entries[0].Title != "" || res.Entries[0].Time != "00:00:00" {
		t.Errorf("Entries[0] = %+v, want untitled at 00:00:00", res.Entries[0])
	}
	if res.Entries[1].Title != "Intro" {
		t.Errorf("Entries[1].Title = %q, want Intro", res.Entries[1].Title)
	}
	if res.Chunks != 2 {
		t.Errorf("Chunks = %d, want 2", res.Chunks)
	}

	first := `<speak>Hello <break time="250ms"/><emphasis level="moderate">"world"</emphasis><break time="250ms"/><break time="1000ms"/>` + "\n</speak>"
	second := `<speak><break time="3500ms"/>Topic <emphasis level="strong">Intro</emphasis><break time="3500ms"/><break time="1000ms"/>` + "\nThis is it.</speak>"

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("ReadFile(output) error = %v", err)
	}
	if string(data) != first+second {
		t.Errorf("output =\n%q\nwant\n%q", data, first+second)
	}

	wantOffset := float64(len(first)) / 100
	if res.Entries[1].Offset != wantOffset {
		t.Errorf("Entries[1].Offset = %v, want %v", res.Entries[1].Offset, wantOffset)
	}
	if res.Size != int64(len(first+second)) {
		t.Errorf("Size = %d, want %d", res.Size, len(first+second))
	}
	if res.RunID == "" {
		t.Error("RunID should be set")
	}

	for i, part := range runner.partsSeen {
		if want := PartName("book", i, ".mp3"); filepath.Base(part) != want {
			t.Errorf("part %d = %s, want %s", i, filepath.Base(part), want)
		}
	}
	assertEmptyDir(t, work)
}

func TestRunOneChunkPerSection(t *testing.T) {
	text := "opening words.\n= One =\nfirst part.\n= Two =\nsecond part.\n== Three ==\nthird part."
	backend := &recordingBackend{}
	p, work := newTestPipeline(t, config.DefaultConfig(), backend, &toolRunner{})

	res, err := p.Run(context.Background(), text, filepath.Join(t.TempDir(), "out.mp3"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Chunks != 4 || len(res.Entries) != 4 {
		t.Errorf("Chunks = %d, Entries = %d; want 4, 4", res.Chunks, len(res.Entries))
	}
	if len(backend.requests()) != 4 {
		t.Errorf("backend requests = %d, want 4", len(backend.requests()))
	}
	for i := 1; i < len(res.Entries); i++ {
		if res.Entries[i].Offset < res.Entries[i-1].Offset {
			t.Errorf("TOC offset decreased at %d", i)
		}
	}
	assertEmptyDir(t, work)
}

func TestRunEmDash(t *testing.T) {
	backend := &recordingBackend{}
	p, _ := newTestPipeline(t, config.DefaultConfig(), backend, &toolRunner{})

	if _, err := p.Run(context.Background(), "it was late — too late", filepath.Join(t.TempDir(), "out.mp3")); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	markups := backend.requests()
	if len(markups) != 1 {
		t.Fatalf("backend requests = %d, want 1", len(markups))
	}
	cue := `<break time="500ms"/>—`
	if strings.Count(markups[0], `<break time="500ms"/>`) != 1 || !strings.Contains(markups[0], cue) {
		t.Errorf("markup %q should hold exactly one 500ms pause before the dash", markups[0])
	}
}

func TestRunSplitsLargeSections(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Block.Size = 200
	text := strings.Repeat("a short sentence here. ", 40)

	backend := &recordingBackend{}
	p, work := newTestPipeline(t, cfg, backend, &toolRunner{})

	res, err := p.Run(context.Background(), text, filepath.Join(t.TempDir(), "out.mp3"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Chunks < 2 {
		t.Errorf("Chunks = %d, want the section split into several chunks", res.Chunks)
	}
	for _, m := range backend.requests() {
		if len(m) >= cfg.Block.Size {
			t.Errorf("markup of %d bytes exceeds budget %d", len(m), cfg.Block.Size)
		}
	}
	assertEmptyDir(t, work)
}

func TestRunEmptyInput(t *testing.T) {
	backend := &recordingBackend{}
	p, _ := newTestPipeline(t, config.DefaultConfig(), backend, &toolRunner{})

	for _, text := range []string{"", "   ", "\n\t\n"} {
		_, err := p.Run(context.Background(), text, "out.mp3")
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Run(%q) error = %v, want ErrEmptyInput", text, err)
		}
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageInput {
			t.Errorf("Run(%q) stage = %v, want input", text, err)
		}
	}
	if len(backend.requests()) != 0 {
		t.Error("no synthesis should be attempted for empty input")
	}
}

func TestRunReplacesExistingOutput(t *testing.T) {
	p, _ := newTestPipeline(t, config.DefaultConfig(), &recordingBackend{}, &toolRunner{})
	outDir := t.TempDir()
	output := filepath.Join(outDir, "book.mp3")
	if err := os.WriteFile(output, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Run(context.Background(), "fresh text.", output); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatal(err)
	}
	if want := "<speak>fresh text.</speak>"; string(data) != want {
		t.Errorf("output = %q, want %q", data, want)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "book.mp3" {
		t.Errorf("output dir holds %v, want only book.mp3", entries)
	}
}

func TestRunRejectsRawOutput(t *testing.T) {
	backend := &recordingBackend{}
	p, _ := newTestPipeline(t, config.DefaultConfig(), backend, &toolRunner{})

	_, err := p.Run(context.Background(), "some text.", filepath.Join(t.TempDir(), "out.pcm"))

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageInput {
		t.Fatalf("error = %v, want input stage error", err)
	}
	if len(backend.requests()) != 0 {
		t.Error("no synthesis should be attempted for an unsupported output")
	}
}

func TestRunSynthesisFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Retries = 3
	backend := &recordingBackend{fail: true}
	runner := &toolRunner{}
	p, work := newTestPipeline(t, cfg, backend, runner)
	output := filepath.Join(t.TempDir(), "out.mp3")

	_, err := p.Run(context.Background(), "one sentence.", output)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSynthesize {
		t.Fatalf("error = %v, want synthesize stage error", err)
	}
	var exhausted *synth.RetryExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 3 {
		t.Errorf("error = %v, want RetryExhaustedError after 3 attempts", err)
	}
	if len(runner.probed) != 0 {
		t.Error("nothing should be probed after synthesis fails")
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("no output should be written")
	}
	assertEmptyDir(t, work)
}

func TestRunAssembleFailure(t *testing.T) {
	runner := &toolRunner{assembleErr: &audio.ExternalProcessError{Command: "ffmpeg", ExitCode: 1, Output: "boom"}}
	p, work := newTestPipeline(t, config.DefaultConfig(), &recordingBackend{}, runner)
	outDir := t.TempDir()
	output := filepath.Join(outDir, "out.mp3")

	_, err := p.Run(context.Background(), "one.\n= Two =\ntwo.", output)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageAssemble {
		t.Fatalf("error = %v, want assemble stage error", err)
	}
	var procErr *audio.ExternalProcessError
	if !errors.As(err, &procErr) || procErr.Output != "boom" {
		t.Errorf("error = %v, want ExternalProcessError with output", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Error("no output should be written")
	}
	assertEmptyDir(t, outDir)
	assertEmptyDir(t, work)
}

func TestRunProbeFailure(t *testing.T) {
	runner := &toolRunner{probeErr: &audio.ExternalProcessError{Command: "ffprobe", ExitCode: 1}}
	p, work := newTestPipeline(t, config.DefaultConfig(), &recordingBackend{}, runner)
	outDir := t.TempDir()
	output := filepath.Join(outDir, "out.mp3")
	if err := os.WriteFile(output, []byte("previous run"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := p.Run(context.Background(), "some text.", output)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageProbe {
		t.Fatalf("error = %v, want probe stage error", err)
	}
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("existing output removed: %v", err)
	}
	if string(data) != "previous run" {
		t.Errorf("existing output overwritten: %q", data)
	}
	if entries, _ := os.ReadDir(outDir); len(entries) != 1 {
		t.Errorf("staged output left behind: %d entries in output dir", len(entries))
	}
	assertEmptyDir(t, work)
}

func TestPartName(t *testing.T) {
	tests := []struct {
		stem  string
		index int
		ext   string
		want  string
	}{
		{"book", 0, ".mp3", "book-0000.mp3"},
		{"book", 42, ".ogg", "book-0042.ogg"},
		{"book", 12345, ".mp3", "book-12345.mp3"},
	}
	for _, tt := range tests {
		if got := PartName(tt.stem, tt.index, tt.ext); got != tt.want {
			t.Errorf("PartName(%q, %d, %q) = %q, want %q", tt.stem, tt.index, tt.ext, got, tt.want)
		}
	}
}

func TestPartStem(t *testing.T) {
	tests := []struct {
		output, format string
		stem, ext      string
	}{
		{"/tmp/book.mp3", "mp3", "book", ".mp3"},
		{"out/chapter.one.ogg", "ogg_vorbis", "chapter.one", ".ogg"},
		{"book", "mp3", "book", ".mp3"},
		{"book", "ogg_vorbis", "book", ".ogg"},
	}
	for _, tt := range tests {
		stem, ext := partStem(tt.output, tt.format)
		if stem != tt.stem || ext != tt.ext {
			t.Errorf("partStem(%q) = %q, %q; want %q, %q", tt.output, stem, ext, tt.stem, tt.ext)
		}
	}
}

func TestStageError(t *testing.T) {
	err := stageError(StageTOC, errors.New("mismatch"))
	if err.Error() != "toc: mismatch" {
		t.Errorf("Error() = %q", err.Error())
	}
	if stageError(StageTOC, nil) != nil {
		t.Error("stageError(nil) should be nil")
	}
}
