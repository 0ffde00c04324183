package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// LoadFromViper builds a Config from v, starting from the defaults and
// overriding every key that is set.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	// Synthesis
	if v.IsSet("retries") {
		cfg.Retries = v.GetInt("retries")
	}
	if v.IsSet("rate_limit") {
		cfg.RateLimit = v.GetFloat64("rate_limit")
	}

	// Voice
	if v.IsSet("voice") {
		cfg.Voice = v.GetString("voice")
	}
	if v.IsSet("engine") {
		cfg.Engine = v.GetString("engine")
	}
	if v.IsSet("language") {
		cfg.Language = v.GetString("language")
	}
	if v.IsSet("lexicons") {
		cfg.Lexicons = v.GetStringSlice("lexicons")
	}

	// Output
	if v.IsSet("format") {
		cfg.Format = v.GetString("format")
	}
	if v.IsSet("sample_rate") {
		cfg.SampleRate = v.GetInt("sample_rate")
	}
	if v.IsSet("codec") {
		cfg.Codec = v.GetString("codec")
	}

	// AWS
	if v.IsSet("region") {
		cfg.Region = v.GetString("region")
	}
	if v.IsSet("profile") {
		cfg.Profile = v.GetString("profile")
	}

	// Block splitting
	if v.IsSet("block.size") {
		cfg.Block.Size = v.GetInt("block.size")
	}
	if v.IsSet("block.separator") {
		cfg.Block.Separator = v.GetString("block.separator")
	}

	// External tools
	if v.IsSet("ffmpeg") {
		cfg.FFmpeg = v.GetString("ffmpeg")
	}
	if v.IsSet("ffprobe") {
		cfg.FFprobe = v.GetString("ffprobe")
	}

	// Cache
	if v.IsSet("cache.enabled") {
		cfg.Cache.Enabled = v.GetBool("cache.enabled")
	}
	if v.IsSet("cache.dir") {
		cfg.Cache.Dir = v.GetString("cache.dir")
	}
	if v.IsSet("cache.max_size") {
		size, err := humanize.ParseBytes(v.GetString("cache.max_size"))
		if err != nil {
			return cfg, fmt.Errorf("invalid cache.max_size: %w", err)
		}
		cfg.Cache.MaxSize = int64(size) //nolint:gosec
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"request_timeout", &cfg.RequestTimeout},
		{"ssml.quote.break", &cfg.SSML.QuoteBreak},
		{"ssml.heading.break", &cfg.SSML.HeadingBreak},
		{"ssml.heading.difference", &cfg.SSML.HeadingDifference},
		{"ssml.ellipsis.break", &cfg.SSML.EllipsisBreak},
		{"ssml.dash.break", &cfg.SSML.DashBreak},
		{"ssml.newline.break", &cfg.SSML.NewlineBreak},
	}
	for _, d := range durations {
		if !v.IsSet(d.key) {
			continue
		}
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v.IsSet("ssml.quote.emphasis") {
		cfg.SSML.QuoteEmphasis = v.GetString("ssml.quote.emphasis")
	}
	if v.IsSet("ssml.heading.emphasis") {
		cfg.SSML.HeadingEmphasis = v.GetString("ssml.heading.emphasis")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("1.5s") or bare milliseconds ("250").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// SetDefaults sets default values in v for every configuration key.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("retries", defaults.Retries)
	v.SetDefault("rate_limit", defaults.RateLimit)
	v.SetDefault("request_timeout", defaults.RequestTimeout.String())

	v.SetDefault("voice", defaults.Voice)
	v.SetDefault("engine", defaults.Engine)
	v.SetDefault("language", defaults.Language)
	v.SetDefault("lexicons", defaults.Lexicons)

	v.SetDefault("format", defaults.Format)
	v.SetDefault("sample_rate", defaults.SampleRate)
	v.SetDefault("codec", defaults.Codec)

	v.SetDefault("region", defaults.Region)
	v.SetDefault("profile", defaults.Profile)

	v.SetDefault("block.size", defaults.Block.Size)
	v.SetDefault("block.separator", defaults.Block.Separator)

	v.SetDefault("ssml.quote.break", defaults.SSML.QuoteBreak.String())
	v.SetDefault("ssml.quote.emphasis", defaults.SSML.QuoteEmphasis)
	v.SetDefault("ssml.heading.break", defaults.SSML.HeadingBreak.String())
	v.SetDefault("ssml.heading.difference", defaults.SSML.HeadingDifference.String())
	v.SetDefault("ssml.heading.emphasis", defaults.SSML.HeadingEmphasis)
	v.SetDefault("ssml.ellipsis.break", defaults.SSML.EllipsisBreak.String())
	v.SetDefault("ssml.dash.break", defaults.SSML.DashBreak.String())
	v.SetDefault("ssml.newline.break", defaults.SSML.NewlineBreak.String())

	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("cache.max_size", humanize.IBytes(uint64(defaults.Cache.MaxSize))) //nolint:gosec

	v.SetDefault("ffmpeg", defaults.FFmpeg)
	v.SetDefault("ffprobe", defaults.FFprobe)
}
