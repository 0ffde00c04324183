package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
)

// logConfig is read from the environment before flags are parsed.
type logConfig struct {
	File  string `env:"SPEAKDOC_LOG_FILE"`
	Debug bool   `env:"SPEAKDOC_DEBUG"`
}

func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[logConfig]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log config: %w", err)
	}

	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	if cfg.File == "" {
		return func() error { return nil }, nil
	}

	path, err := homedir.Expand(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("unable to expand log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}
