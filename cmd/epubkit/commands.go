package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubkit/internal/epub"
	"github.com/yuanying/epubkit/internal/ingest"
	"github.com/yuanying/epubkit/internal/resource"
)

func newMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <book.epub>",
		Short: "Print title, author and cover path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.syncLogger()
			s, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			md := s.Metadata()
			return opts.render(cmd.OutOrStdout(), md, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Title:  %s\nAuthor: %s\nCover:  %s\n", md.Title, md.Author, md.CoverPath)
				return err
			})
		},
	}
}

func newChaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters <book.epub>",
		Short: "List chapters in reading order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.syncLogger()
			s, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			chapters := s.Chapters()
			if chapters == nil {
				chapters = []epub.Chapter{}
			}
			return opts.render(cmd.OutOrStdout(), chapters, func(w io.Writer) error {
				for _, ch := range chapters {
					if _, err := fmt.Fprintf(w, "%3d  %s\t%s\n", ch.OrderNum, ch.Title, ch.Href); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newTextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "text <book.epub> <href>",
		Short: "Print a chapter as plain text",
		Long:  "Print a chapter as plain text. href is relative to the package document, as listed by 'chapters'.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContent(cmd, args, (*epub.Session).PlainText)
		},
	}
}

func newHTMLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "html <book.epub> <href>",
		Short: "Print a chapter as reader HTML",
		Long:  "Print a chapter as self-contained reader HTML with resource links rewritten. href is relative to the package document.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContent(cmd, args, (*epub.Session).ReaderHTML)
		},
	}
}

func runContent(cmd *cobra.Command, args []string, derive func(*epub.Session, string) epub.Content) error {
	opts, err := readCLIOptions(cmd)
	if err != nil {
		return err
	}
	defer opts.syncLogger()
	s, err := opts.openSession(args[0])
	if err != nil {
		return err
	}
	defer s.Close()

	content := derive(s, args[1])
	return opts.render(cmd.OutOrStdout(), content, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, content.Body)
		return err
	})
}

func newCoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover <book.epub>",
		Short: "Save the cover image as JPEG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.syncLogger()
			coverOpts, dir, err := coverSettings(cmd, opts)
			if err != nil {
				return err
			}

			s, err := opts.openSession(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			name, err := ingest.SaveCover(s, dir, coverOpts)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, name)
			return opts.render(cmd.OutOrStdout(), map[string]string{"file": name, "path": path}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, path)
				return err
			})
		},
	}
	addCoverFlags(cmd)
	return cmd
}

func newResourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resource <path>",
		Short: "Locate a chapter resource in the library",
		Long: `Locate an image or stylesheet referenced by reader HTML. path is the part
after the resource prefix; the first library archive holding a matching
entry wins and the entry is extracted into the cache directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.syncLogger()
			cfg := opts.Config.Library
			if cmd.Flags().Changed("library") {
				cfg.Dir, _ = cmd.Flags().GetString("library")
			}
			if cmd.Flags().Changed("cache-dir") {
				cfg.CacheDir, _ = cmd.Flags().GetString("cache-dir")
			}

			r := resource.NewResolver(resource.Config{
				LibraryDir:   cfg.Dir,
				CacheDir:     cfg.CacheDir,
				ArchiveGlob:  cfg.ArchiveGlob,
				MaxEntrySize: opts.Config.Epub.MaxEntrySize,
				Logger:       opts.Logger,
			})
			res, err := r.Resolve(args[0])
			if err != nil {
				return err
			}
			return opts.render(cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s\t%s\n", res.Path, res.ContentType)
				return err
			})
		},
	}
	cmd.Flags().String("library", "", "Directory holding EPUB files (env LIBRARY_DIR)")
	cmd.Flags().String("cache-dir", "", "Directory for extracted resources (env RESOURCE_CACHE_DIR)")
	return cmd
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <book.epub>",
		Short: "Derive the book and chapter records of an EPUB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			defer opts.syncLogger()
			sessionOpts, err := opts.sessionOptions()
			if err != nil {
				return err
			}
			coverOpts, dir, err := coverSettings(cmd, opts)
			if err != nil {
				return err
			}
			if noCover, _ := cmd.Flags().GetBool("no-cover"); noCover {
				dir = ""
			}
			skipText, _ := cmd.Flags().GetBool("skip-text")
			skipHTML, _ := cmd.Flags().GetBool("skip-html")

			book, err := ingest.NewPipeline(ingest.Options{
				Session:  sessionOpts,
				CoverDir: dir,
				Cover:    coverOpts,
				SkipText: skipText,
				SkipHTML: skipHTML,
				Logger:   opts.Logger,
			}).Run(args[0])
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}

			return opts.render(cmd.OutOrStdout(), book, func(w io.Writer) error {
				if _, err := fmt.Fprintf(w, "%s  %s / %s  (%d chapters, cover %q)\n",
					book.ID, book.Title, book.Author, len(book.Chapters), book.CoverFile); err != nil {
					return err
				}
				for _, ch := range book.Chapters {
					if _, err := fmt.Fprintf(w, "%3d  %s\t%s\n", ch.OrderNum, ch.Title, ch.Href); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	addCoverFlags(cmd)
	cmd.Flags().Bool("no-cover", false, "Do not extract the cover")
	cmd.Flags().Bool("skip-text", false, "Do not derive plain text")
	cmd.Flags().Bool("skip-html", false, "Do not derive reader HTML")
	return cmd
}

func addCoverFlags(cmd *cobra.Command) {
	cmd.Flags().String("cover-dir", "", "Directory receiving cover images (env COVER_DIR)")
	cmd.Flags().Int("quality", 0, "JPEG quality for converted covers, 1-100 (env COVER_JPEG_QUALITY)")
	cmd.Flags().Int("max-width", 0, "Downscale covers wider than this, 0 keeps the width (env COVER_MAX_WIDTH)")
}

func coverSettings(cmd *cobra.Command, opts *cliOptions) (ingest.CoverOptions, string, error) {
	cfg := opts.Config.Cover
	if cmd.Flags().Changed("cover-dir") {
		cfg.Dir, _ = cmd.Flags().GetString("cover-dir")
	}
	if cmd.Flags().Changed("quality") {
		cfg.JPEGQuality, _ = cmd.Flags().GetInt("quality")
	}
	if cmd.Flags().Changed("max-width") {
		cfg.MaxWidth, _ = cmd.Flags().GetInt("max-width")
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return ingest.CoverOptions{}, "", fmt.Errorf("invalid --quality %d: must be between 1 and 100", cfg.JPEGQuality)
	}
	if cfg.MaxWidth < 0 {
		return ingest.CoverOptions{}, "", fmt.Errorf("invalid --max-width %d: must not be negative", cfg.MaxWidth)
	}
	return ingest.CoverOptions{JPEGQuality: cfg.JPEGQuality, MaxWidth: cfg.MaxWidth}, cfg.Dir, nil
}
