// Package config holds the settings for one speakdoc run.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dgnsrekt/speakdoc/internal/audio"
	"github.com/dgnsrekt/speakdoc/internal/cache"
	"github.com/dgnsrekt/speakdoc/internal/document"
	"github.com/dgnsrekt/speakdoc/internal/ssml"
	"github.com/dgnsrekt/speakdoc/internal/synth"
	"github.com/dgnsrekt/speakdoc/internal/synth/engines"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
)

// AppName names the config file, env prefix and cache directory.
const AppName = "speakdoc"

// Config contains all options for a run.
type Config struct {
	// Synthesis
	Retries        int
	RateLimit      float64
	RequestTimeout time.Duration

	// Voice
	Voice    string
	Engine   string
	Language string
	Lexicons []string

	// Output. An empty Format is derived from the output file extension.
	Format     string
	SampleRate int
	Codec      string

	// AWS
	Region  string
	Profile string

	Block document.BlockOptions
	SSML  ssml.Options
	Cache CacheConfig

	// External tools
	FFmpeg  string
	FFprobe string
}

// CacheConfig configures the synthesis cache.
type CacheConfig struct {
	Enabled bool
	Dir     string
	MaxSize int64 // bytes
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Retries:    synth.DefaultRetries,
		Voice:      "Joanna",
		Engine:     "standard",
		SampleRate: 22050,
		Codec:      audio.DefaultCodec,
		Region:     engines.DefaultRegion,
		Block:      document.DefaultBlockOptions(),
		SSML:       ssml.DefaultOptions(),
		Cache: CacheConfig{
			Enabled: false,
			MaxSize: cache.DefaultConfig("").Capacity,
		},
		FFmpeg:  "ffmpeg",
		FFprobe: "ffprobe",
	}
}

var (
	validEngines = []string{"standard", "neural", "long-form", "generative"}
	validFormats = []string{"mp3", "ogg_vorbis"}

	// Polly sample rates per output format.
	validSampleRates = map[string][]int{
		"mp3":        {8000, 16000, 22050, 24000},
		"ogg_vorbis": {8000, 16000, 22050, 24000},
	}
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative, got %v", c.RequestTimeout)
	}
	if c.Voice == "" {
		return fmt.Errorf("voice is required")
	}

	engineValid := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			engineValid = true
			c.Engine = e
			break
		}
	}
	if !engineValid {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, validEngines)
	}

	if c.Format != "" && !slices.Contains(validFormats, c.Format) {
		return fmt.Errorf("invalid output format '%s': must be one of %v", c.Format, validFormats)
	}
	formats := validFormats
	if c.Format != "" {
		formats = []string{c.Format}
	}
	for _, f := range formats {
		if err := checkSampleRate(f, c.SampleRate); err != nil {
			return err
		}
	}

	if c.Codec == "" {
		return fmt.Errorf("codec is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}

	if err := c.Block.Validate(); err != nil {
		return err
	}
	if err := c.SSML.Validate(); err != nil {
		return err
	}

	if c.Cache.Enabled && c.Cache.MaxSize <= 0 {
		return fmt.Errorf("cache max size must be positive, got %d", c.Cache.MaxSize)
	}
	return nil
}

func checkSampleRate(format string, rate int) error {
	if !slices.Contains(validSampleRates[format], rate) {
		return fmt.Errorf("invalid sample rate %d for %s: must be one of %v", rate, format, validSampleRates[format])
	}
	return nil
}

// OutputFormat returns the backend format for an output path. An explicit
// Format wins; otherwise .ogg and .oga select Ogg Vorbis and everything else
// is MP3. Raw PCM outputs are rejected since headerless parts can be neither
// probed nor joined.
func (c Config) OutputFormat(output string) (string, error) {
	if c.Format != "" {
		return c.Format, nil
	}
	switch ext := strings.ToLower(filepath.Ext(output)); ext {
	case ".ogg", ".oga":
		return "ogg_vorbis", nil
	case ".pcm", ".raw":
		return "", fmt.Errorf("unsupported output extension %s: use one of %v", ext, validFormats)
	default:
		return "mp3", nil
	}
}

// RequestTemplate returns the request fields shared by every chunk.
func (c Config) RequestTemplate(format string) synth.Request {
	return synth.Request{
		TextType:     synth.TextTypeSSML,
		Voice:        c.Voice,
		Engine:       c.Engine,
		LanguageCode: c.Language,
		Lexicons:     c.Lexicons,
		Format:       format,
		SampleRate:   c.SampleRate,
	}
}

// OrchestratorOptions returns the synth options for an output format.
func (c Config) OrchestratorOptions(format string) synth.Options {
	return synth.Options{
		Retries:        c.Retries,
		RateLimit:      c.RateLimit,
		RequestTimeout: c.RequestTimeout,
		Template:       c.RequestTemplate(format),
	}
}

// PollyConfig returns the backend settings.
func (c Config) PollyConfig() engines.PollyConfig {
	return engines.PollyConfig{Region: c.Region, Profile: c.Profile}
}

// CacheStoreConfig returns the store settings, resolving the default cache
// directory when none is configured.
func (c Config) CacheStoreConfig() (cache.Config, error) {
	dir := c.Cache.Dir
	if dir == "" {
		var err error
		dir, err = DefaultCacheDir()
		if err != nil {
			return cache.Config{}, err
		}
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return cache.Config{}, fmt.Errorf("unable to expand cache directory: %w", err)
	}

	cfg := cache.DefaultConfig(dir)
	cfg.Capacity = c.Cache.MaxSize
	return cfg, nil
}

// DefaultCacheDir is the per-user cache directory.
func DefaultCacheDir() (string, error) {
	dir, err := gap.NewScope(gap.User, AppName).CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return dir, nil
}
