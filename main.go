// Package main provides the entry point for the speakdoc CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/speakdoc/internal/audio"
	"github.com/dgnsrekt/speakdoc/internal/cache"
	"github.com/dgnsrekt/speakdoc/internal/config"
	"github.com/dgnsrekt/speakdoc/internal/pipeline"
	"github.com/dgnsrekt/speakdoc/internal/synth"
	"github.com/dgnsrekt/speakdoc/internal/synth/engines"
	"github.com/dgnsrekt/speakdoc/internal/toc"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	output     string
	tocFile    string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "speakdoc [SOURCE]",
		Short: "Narrate a text document into a single audio file",
		Long: paragraph(
			fmt.Sprintf("\nTurn a plain-text document into %s with a chapter table of contents. "+
				"Headings written as %s become chapters.",
				keyword("one narrated audio file"), keyword("== Title ==")),
		),
		Example: paragraph("speakdoc book.txt -o book.mp3\n" +
			"cat notes.txt | speakdoc -o notes.ogg --voice Matthew\n" +
			"speakdoc book.txt --toc chapters.txt --cache"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// readSource returns the document text and the path it came from. An empty
// path means stdin.
func readSource(arg string) (string, string, error) {
	if arg == "" || arg == "-" {
		if arg == "" && term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec
			return "", "", errors.New("missing source: pass a file or pipe text on stdin")
		}
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("unable to read stdin: %w", err)
		}
		return string(b), "", nil
	}

	path, err := homedir.Expand(arg)
	if err != nil {
		return "", "", fmt.Errorf("unable to expand path: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("unable to read file: %w", err)
	}
	return string(b), path, nil
}

// outputPath resolves the output flag, defaulting to the source name with
// an .mp3 extension.
func outputPath(flag, source string) (string, error) {
	if flag != "" {
		return homedir.Expand(flag)
	}
	if source == "" {
		return "", errors.New("--output is required when reading from stdin")
	}
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".mp3", nil
}

func validateOptions(cmd *cobra.Command) error {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		path, err := homedir.Expand(configFile)
		if err != nil {
			return fmt.Errorf("unable to expand config path: %w", err)
		}
		configFile = path
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	debug = viper.GetBool("debug")
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromViper(viper.GetViper())
	if err != nil {
		return err
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	text, source, err := readSource(arg)
	if err != nil {
		return err
	}
	out, err := outputPath(output, source)
	if err != nil {
		return err
	}

	if err := audio.CheckDependencies(cfg.FFmpeg, cfg.FFprobe); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	res, err := pipeline.New(cfg, backend, pipeline.WithLogger(log.Default())).Run(ctx, text, out)
	if err != nil {
		return fmt.Errorf("unable to narrate document: %w", err)
	}

	if err := printTOC(cmd.OutOrStdout(), res.Entries); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	if tocFile != "" {
		if err := writeTOCFile(tocFile, res.Entries); err != nil {
			return err
		}
	}

	log.Info("Done",
		"output", res.Output,
		"chunks", res.Chunks,
		"length", toc.FormatTimestamp(res.Duration),
		"size", humanize.Bytes(uint64(res.Size))) //nolint:gosec
	return nil
}

// newBackend connects to Polly, wrapped by the on-disk cache when enabled.
func newBackend(ctx context.Context, cfg config.Config) (synth.Backend, func(), error) {
	polly, err := engines.NewPollyEngine(ctx, cfg.PollyConfig())
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Cache.Enabled {
		return polly, func() {}, nil
	}

	storeCfg, err := cfg.CacheStoreConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := cache.Open(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open cache: %w", err)
	}
	log.Debug("Synthesis cache enabled", "dir", storeCfg.Dir, "capacity", humanize.IBytes(uint64(storeCfg.Capacity))) //nolint:gosec

	closer := func() {
		stats := store.Stats()
		log.Debug("Synthesis cache closed",
			"hits", stats.Hits,
			"misses", stats.Misses,
			"items", stats.ItemCount,
			"size", humanize.IBytes(uint64(stats.Size))) //nolint:gosec
		if err := store.Close(); err != nil {
			log.Warn("Unable to save cache index", "error", err)
		}
	}
	return synth.NewCachedBackend(polly, store, log.Default()), closer, nil
}

func printTOC(w io.Writer, entries []toc.Entry) error {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd())) //nolint:gosec
	}
	if !styled {
		return toc.Write(w, entries)
	}
	for _, e := range entries {
		if !e.Titled() {
			continue
		}
		if _, err := fmt.Fprintln(w, timestamp(e.Time), e.Title); err != nil {
			return err
		}
	}
	return nil
}

func writeTOCFile(path string, entries []toc.Entry) error {
	path, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("unable to expand path: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create toc file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := toc.Write(f, entries); err != nil {
		return fmt.Errorf("unable to write toc file: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	loadDotEnv()
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	defaults := config.DefaultConfig()
	flags := rootCmd.Flags()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	flags.StringVarP(&output, "output", "o", "", "output audio file (default: SOURCE with .mp3)")
	flags.StringVar(&tocFile, "toc", "", "also write the table of contents to this file")

	flags.String("voice", defaults.Voice, "Polly voice ID")
	flags.String("engine", defaults.Engine, "Polly engine (standard, neural, long-form, generative)")
	flags.String("language", "", "language code for bilingual voices, e.g. en-US")
	flags.StringSlice("lexicon", nil, "pronunciation lexicon to apply (repeatable)")
	flags.String("region", defaults.Region, "AWS region")
	flags.String("profile", "", "AWS shared config profile")

	flags.String("format", "", "output format (mp3, ogg_vorbis); derived from --output by default")
	flags.Int("sample-rate", defaults.SampleRate, "sample rate in Hz")
	flags.String("codec", defaults.Codec, "ffmpeg audio codec for the assembled file")

	flags.IntP("retries", "r", defaults.Retries, "attempts per chunk before giving up")
	flags.Float64("rate-limit", 0, "maximum backend requests per second (0 is unlimited)")
	flags.Duration("request-timeout", 0, "timeout for a single backend request (0 is none)")
	flags.Int("block-size", defaults.Block.Size, "maximum markup bytes per chunk")

	flags.Bool("cache", false, "reuse synthesized chunks across runs")
	flags.String("cache-dir", "", "cache directory (default: user cache dir)")

	// Config bindings
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("voice", flags.Lookup("voice"))
	_ = viper.BindPFlag("engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("language", flags.Lookup("language"))
	_ = viper.BindPFlag("lexicons", flags.Lookup("lexicon"))
	_ = viper.BindPFlag("region", flags.Lookup("region"))
	_ = viper.BindPFlag("profile", flags.Lookup("profile"))
	_ = viper.BindPFlag("format", flags.Lookup("format"))
	_ = viper.BindPFlag("sample_rate", flags.Lookup("sample-rate"))
	_ = viper.BindPFlag("codec", flags.Lookup("codec"))
	_ = viper.BindPFlag("retries", flags.Lookup("retries"))
	_ = viper.BindPFlag("rate_limit", flags.Lookup("rate-limit"))
	_ = viper.BindPFlag("request_timeout", flags.Lookup("request-timeout"))
	_ = viper.BindPFlag("block.size", flags.Lookup("block-size"))
	_ = viper.BindPFlag("cache.enabled", flags.Lookup("cache"))
	_ = viper.BindPFlag("cache.dir", flags.Lookup("cache-dir"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd)
}

// loadDotEnv reads AWS credentials and SPEAKDOC_* settings from ./.env.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Could not parse .env file", "err", err)
		}
		return
	}
	log.Debug("Loaded environment from .env")
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, config.AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		log.Fatal("Could not resolve configuration directory", "error", err)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, config.AppName)}, dirs...)
	}

	if c := os.Getenv("SPEAKDOC_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(config.AppName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
		return
	}

	configFile = filepath.Join(dirs[0], config.AppName+".yml")
	if _, err := ensureConfigFile(configFile); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
