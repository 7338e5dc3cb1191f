package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/yuanying/epubkit/internal/config"
	"github.com/yuanying/epubkit/internal/epub"
	"github.com/yuanying/epubkit/internal/logging"
)

var outputFormats = []string{"text", "json", "yaml"}

// cliOptions is the resolved configuration of one invocation:
// environment first, then flags.
type cliOptions struct {
	Config *config.Config
	Format string
	Logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epubkit",
		Short: "Extract metadata, chapters, text and reader HTML from EPUB files",
		Long: `epubkit opens EPUB 2/3 books, including malformed ones, and derives a
normalized view: title and author, an ordered chapter list, per-chapter
plain text and reader-safe HTML, and the cover image.

Configuration is read from the environment (and an optional .env file);
flags override it.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("env-file", "", "Load environment variables from this file (default: ./.env if present)")
	flags.StringP("format", "f", "text", "Output format: text, json, yaml")
	flags.String("scratch-dir", "", "Parent directory for extraction workspaces (env EPUB_SCRATCH_DIR)")
	flags.String("resource-prefix", "", "Prefix for rewritten resource links (env EPUB_RESOURCE_PREFIX)")
	flags.StringSlice("encodings", nil, "Fallback encodings tried after UTF-8 (env EPUB_FALLBACK_ENCODINGS)")
	flags.Bool("sanitize", false, "Sanitize reader HTML bodies (env EPUB_SANITIZE)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	flags.Bool("log-dev", false, "Human-readable console logs (env LOG_DEV)")
	flags.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")

	cmd.AddCommand(
		newMetadataCmd(),
		newChaptersCmd(),
		newTextCmd(),
		newHTMLCmd(),
		newCoverCmd(),
		newResourceCmd(),
		newIngestCmd(),
	)
	return cmd
}

func readCLIOptions(cmd *cobra.Command) (*cliOptions, error) {
	flags := cmd.Flags()

	envFile, _ := flags.GetString("env-file")
	var err error
	if envFile != "" {
		err = config.LoadDotEnv(envFile)
	} else {
		err = config.LoadDotEnv()
	}
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if flags.Changed("scratch-dir") {
		cfg.Epub.ScratchDir, _ = flags.GetString("scratch-dir")
	}
	if flags.Changed("resource-prefix") {
		cfg.Epub.ResourcePrefix, _ = flags.GetString("resource-prefix")
	}
	if flags.Changed("encodings") {
		cfg.Epub.FallbackEncodings, _ = flags.GetStringSlice("encodings")
	}
	if flags.Changed("sanitize") {
		cfg.Epub.Sanitize, _ = flags.GetBool("sanitize")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-dev") {
		cfg.Logging.Development, _ = flags.GetBool("log-dev")
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}

	format, _ := flags.GetString("format")
	format = strings.ToLower(strings.TrimSpace(format))
	if !slices.Contains(outputFormats, format) {
		return nil, fmt.Errorf("invalid --format %q (want one of %s)", format, strings.Join(outputFormats, ", "))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	return &cliOptions{Config: cfg, Format: format, Logger: logger}, nil
}

// syncLogger flushes buffered log entries. Sync errors on console file
// descriptors are expected and ignored.
func (o *cliOptions) syncLogger() {
	_ = o.Logger.Sync()
}

// sessionOptions builds the extraction options from the configuration.
func (o *cliOptions) sessionOptions() (epub.Options, error) {
	decoder, err := epub.NewDecoder(o.Config.Epub.FallbackEncodings...)
	if err != nil {
		return epub.Options{}, fmt.Errorf("invalid fallback encodings: %w", err)
	}
	return epub.Options{
		ScratchDir:     o.Config.Epub.ScratchDir,
		ResourcePrefix: o.Config.Epub.ResourcePrefix,
		Decoder:        decoder,
		Sanitize:       o.Config.Epub.Sanitize,
		MaxEntrySize:   o.Config.Epub.MaxEntrySize,
		Logger:         o.Logger,
	}, nil
}

// openSession opens path with the configured options.
func (o *cliOptions) openSession(path string) (*epub.Session, error) {
	sessionOpts, err := o.sessionOptions()
	if err != nil {
		return nil, err
	}
	s, err := epub.Open(path, sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	return s, nil
}

// render writes v in the selected format; text uses the provided printer.
func (o *cliOptions) render(w io.Writer, v any, text func(io.Writer) error) error {
	switch o.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return text(w)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
