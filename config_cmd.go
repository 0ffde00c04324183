package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/dgnsrekt/speakdoc/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Amazon Polly voice, engine and language
voice: "Joanna"
# standard, neural, long-form or generative
engine: "standard"
# language: "en-US"
# lexicons: ["names"]

# AWS region and shared config profile
region: "us-east-1"
# profile: "default"

# output format: mp3 or ogg_vorbis (default: from the output extension)
# format: "mp3"
sample_rate: 22050
# ffmpeg audio codec for the final file
codec: "copy"

# attempts per chunk before the run fails
retries: 8
# backend requests per second (0 is unlimited)
rate_limit: 0
# per-request timeout (0s is none)
request_timeout: "0s"

# chunk budget in bytes of markup, cut preferably after the separator
block:
  size: 3000
  separator: "."

# pauses and emphasis added to the narration
ssml:
  quote:
    break: "250ms"
    emphasis: "moderate"
  heading:
    break: "4s"
    # subtracted once per "=" of the heading marker
    difference: "250ms"
    emphasis: "strong"
  ellipsis:
    break: "1.5s"
  dash:
    break: "500ms"
  newline:
    break: "1s"

# reuse synthesized chunks across runs
cache:
  enabled: false
  # dir: "~/.cache/speakdoc"
  max_size: "1 GiB"

ffmpeg: "ffmpeg"
ffprobe: "ffprobe"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the speakdoc config file",
	Long:    paragraph(fmt.Sprintf("\n%s the speakdoc config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("speakdoc config\nspeakdoc config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if configFile == "" {
			configFile = viper.GetViper().ConfigFileUsed()
		}
		created, err := ensureConfigFile(configFile)
		if err != nil {
			return err
		}
		if created {
			log.Info("Created default configuration", "path", configFile)
		}
		return editConfigFile(configFile)
	},
}

// editConfigFile opens path in $EDITOR and waits for it to exit.
func editConfigFile(path string) error {
	c, err := editor.Cmd(config.AppName, path)
	if err != nil {
		return fmt.Errorf("unable to resolve editor: %w", err)
	}
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor exited: %w", err)
	}
	fmt.Println("Saved", path)
	return nil
}

// ensureConfigFile writes the default configuration to path unless a file
// is already there. It reports whether a file was created.
func ensureConfigFile(path string) (bool, error) {
	if path == "" {
		return false, errors.New("no configuration path")
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
	default:
		return false, fmt.Errorf("config file %q must be YAML (.yml or .yaml), got %q", path, ext)
	}

	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return false, fmt.Errorf("writing default config: %w", err)
	}
	return true, nil
}
