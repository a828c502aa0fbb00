package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yuanying/kdpforge/internal/manuscript"
	"github.com/yuanying/kdpforge/internal/parser"
	"github.com/yuanying/kdpforge/internal/pipeline"
	"github.com/yuanying/kdpforge/internal/server"
)

const (
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
	defaultAddr      = server.DefaultAddr
	defaultMaxUpload = server.DefaultMaxUploadBytes >> 20
)

// cliOptions is everything a manuscript command needs.
type cliOptions struct {
	InputPath   string
	OutputPath  string
	InputFormat parser.Format
	Config      manuscript.FormatConfig
	Compress    bool
	Markdown    bool
	Logger      *slog.Logger
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kdpforge",
		Short: "Format manuscripts as KDP print interiors",
		Long: `kdpforge turns a DOCX, EPUB or Markdown manuscript into a print-ready
Amazon KDP paperback interior PDF.

It also writes EPUB 3 packages and review DOCX files from the same
manuscript, and can serve all of this over HTTP.`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("log-level", defaultLogLevel, "Log level: debug, info, warn, error")
	pf.String("log-format", defaultLogFormat, "Log format: text, json")
	pf.BoolP("verbose", "v", false, "Enable debug logging (overrides --log-level)")

	root.AddCommand(
		newFormatCmd(),
		newParseCmd(),
		newEPUBCmd(),
		newReviewCmd(),
		newCompressCmd(),
		newServeCmd(),
	)
	return root
}

func newFormatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "format <manuscript>",
		Short: "Lay out a manuscript as a KDP interior PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args, "pdf")
			if err != nil {
				return err
			}
			data, err := os.ReadFile(opts.InputPath)
			if err != nil {
				return fmt.Errorf("failed to read manuscript: %w", err)
			}

			out, err := newPipeline(opts).Format(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("format failed: %w", err)
			}
			if err := os.WriteFile(opts.OutputPath, out.PDF, 0o644); err != nil {
				return fmt.Errorf("failed to write PDF: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d pages, trim %s\n", opts.OutputPath, out.PageCount(), out.Config.TrimSize)
			if out.Compression != nil {
				fmt.Fprintf(w, "compressed %d -> %d bytes (%.0f%% saved)\n",
					out.Compression.OriginalSize, out.Compression.OutputSize, (1-out.Compression.Ratio())*100)
			}
			for _, issue := range out.Issues() {
				fmt.Fprintf(w, "warning: %s\n", issue)
			}
			return nil
		},
	}
	addOutputFlag(cmd, "input with .pdf extension")
	addManuscriptFlags(cmd)
	cmd.Flags().Bool("compress", false, "Optimize the PDF with pdfcpu after layout")
	return cmd
}

func newParseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <manuscript>",
		Short: "Print the structured content of a manuscript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args, "")
			if err != nil {
				return err
			}
			data, err := os.ReadFile(opts.InputPath)
			if err != nil {
				return fmt.Errorf("failed to read manuscript: %w", err)
			}

			p := newPipeline(opts)
			var body []byte
			if opts.Markdown {
				md, _, err := p.Markdown(cmd.Context(), data)
				if err != nil {
					return fmt.Errorf("parse failed: %w", err)
				}
				body = []byte(md)
			} else {
				res, err := p.Parse(cmd.Context(), data)
				if err != nil {
					return fmt.Errorf("parse failed: %w", err)
				}
				body, err = json.MarshalIndent(res.Content, "", "  ")
				if err != nil {
					return err
				}
				body = append(body, '\n')
			}
			return writeOutput(cmd.OutOrStdout(), opts.OutputPath, body)
		},
	}
	addOutputFlag(cmd, "stdout")
	addManuscriptFlags(cmd)
	cmd.Flags().Bool("markdown", false, "Print CommonMark with YAML front matter instead of JSON")
	return cmd
}

func newEPUBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epub <manuscript>",
		Short: "Write a manuscript as an EPUB 3 package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args, "epub")
			if err != nil {
				return err
			}
			data, err := os.ReadFile(opts.InputPath)
			if err != nil {
				return fmt.Errorf("failed to read manuscript: %w", err)
			}
			var buf bytes.Buffer
			content, err := newPipeline(opts).EPUB(cmd.Context(), data, &buf)
			if err != nil {
				return fmt.Errorf("epub failed: %w", err)
			}
			if err := os.WriteFile(opts.OutputPath, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write EPUB: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chapters\n", opts.OutputPath, len(content.Chapters))
			return nil
		},
	}
	addOutputFlag(cmd, "input with .epub extension")
	addManuscriptFlags(cmd)
	return cmd
}

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <manuscript>",
		Short: "Write a manuscript as a DOCX for editorial review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args, "review.docx")
			if err != nil {
				return err
			}
			data, err := os.ReadFile(opts.InputPath)
			if err != nil {
				return fmt.Errorf("failed to read manuscript: %w", err)
			}
			var buf bytes.Buffer
			content, err := newPipeline(opts).Review(cmd.Context(), data, &buf)
			if err != nil {
				return fmt.Errorf("review failed: %w", err)
			}
			if err := os.WriteFile(opts.OutputPath, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("failed to write review document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chapters\n", opts.OutputPath, len(content.Chapters))
			return nil
		},
	}
	addOutputFlag(cmd, "input with .review.docx extension")
	addManuscriptFlags(cmd)
	return cmd
}

func newCompressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress <pdf>",
		Short: "Optimize an existing PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := readLogger(cmd)
			if err != nil {
				return err
			}
			input := args[0]
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = defaultOutputPath(input, "min.pdf")
			}
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read PDF: %w", err)
			}

			p := pipeline.New(pipeline.Options{Logger: logger})
			out, stats, err := p.Compress(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("compress failed: %w", err)
			}
			if err := os.WriteFile(output, out, 0o644); err != nil {
				return fmt.Errorf("failed to write PDF: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d -> %d bytes\n", output, stats.Pages, stats.OriginalSize, stats.OutputSize)
			return nil
		},
	}
	addOutputFlag(cmd, "input with .min.pdf extension")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the formatting API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := readLogger(cmd)
			if err != nil {
				return err
			}
			cfg, err := readFormatConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			addr, _ := flags.GetString("addr")
			maxUpload, _ := flags.GetInt64("max-upload")
			if maxUpload <= 0 {
				return fmt.Errorf("--max-upload must be positive")
			}

			srv := server.New(server.Config{
				Addr:           addr,
				MaxUploadBytes: maxUpload << 20,
				Defaults:       cfg,
				Logger:         logger,
			})
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", defaultAddr, "Listen address")
	cmd.Flags().Int64("max-upload", defaultMaxUpload, "Maximum upload size in MiB")
	addManuscriptFlags(cmd)
	return cmd
}

func addOutputFlag(cmd *cobra.Command, def string) {
	cmd.Flags().StringP("output", "o", "", fmt.Sprintf("Output file path (default: %s)", def))
}

// addManuscriptFlags registers the format config flags. Flags that are set
// override values from --config.
func addManuscriptFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("config", "c", "", "YAML format config file")
	f.String("input-format", "", "Manuscript format: docx, epub, md (default: detected)")
	f.String("trim", "", fmt.Sprintf("Trim size, one of %s (default %s)", strings.Join(manuscript.TrimSizeIDs(), ", "), manuscript.DefaultTrimSize))
	f.String("font", "", "Body font family (default "+manuscript.DefaultFont+")")
	f.String("heading-font", "", "Heading font family (default: body font)")
	f.Float64("font-size", 0, "Body font size in points (8-14)")
	f.Float64("line-spacing", 0, "Line spacing multiplier (1.0-2.0)")
	f.String("style", "", "Paragraph style: fiction, nonfiction")
	f.Bool("bleed", false, "Add 0.125in bleed on the outer edges")
	f.String("title", "", "Override the book title")
	f.String("author", "", "Override the author")
	f.String("isbn", "", "ISBN printed on the copyright page")
	f.String("copyright", "", "Override the copyright holder")
	f.Int("year", 0, "Copyright year (default: current year)")
	f.Bool("no-title-page", false, "Omit the half-title and title pages")
	f.Bool("no-copyright", false, "Omit the copyright page")
	f.Bool("no-toc", false, "Omit the table of contents")
	f.String("dedication", "", "Dedication text; enables the dedication page")
}

// readFormatConfig loads --config and applies the flags that were set.
func readFormatConfig(cmd *cobra.Command) (manuscript.FormatConfig, error) {
	var cfg manuscript.FormatConfig
	f := cmd.Flags()

	if path, _ := f.GetString("config"); path != "" {
		loaded, err := manuscript.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if f.Changed("trim") {
		trim, _ := f.GetString("trim")
		if _, ok := manuscript.LookupTrimSize(trim); !ok {
			return cfg, fmt.Errorf("--trim must be one of %s", strings.Join(manuscript.TrimSizeIDs(), ", "))
		}
		cfg.TrimSize = trim
	}
	if f.Changed("font") {
		cfg.BodyFont, _ = f.GetString("font")
	}
	if f.Changed("heading-font") {
		cfg.HeadingFont, _ = f.GetString("heading-font")
	}
	if f.Changed("font-size") {
		size, _ := f.GetFloat64("font-size")
		if size <= 0 {
			return cfg, fmt.Errorf("--font-size must be positive")
		}
		cfg.FontSize = size
	}
	if f.Changed("line-spacing") {
		spacing, _ := f.GetFloat64("line-spacing")
		if spacing <= 0 {
			return cfg, fmt.Errorf("--line-spacing must be positive")
		}
		cfg.LineSpacing = spacing
	}
	if f.Changed("style") {
		style, _ := f.GetString("style")
		style = strings.ToLower(strings.TrimSpace(style))
		if style != manuscript.StyleFiction && style != manuscript.StyleNonfiction {
			return cfg, fmt.Errorf("--style must be one of: %s, %s", manuscript.StyleFiction, manuscript.StyleNonfiction)
		}
		cfg.ParagraphStyle = style
	}
	if f.Changed("bleed") {
		cfg.Bleed, _ = f.GetBool("bleed")
	}
	for flag, dst := range map[string]*string{
		"title":     &cfg.Title,
		"author":    &cfg.Author,
		"isbn":      &cfg.ISBN,
		"copyright": &cfg.Copyright,
	} {
		if f.Changed(flag) {
			*dst, _ = f.GetString(flag)
		}
	}
	if f.Changed("year") {
		cfg.Year, _ = f.GetInt("year")
	}
	for flag, dst := range map[string]**bool{
		"no-title-page": &cfg.FrontMatter.TitlePage,
		"no-copyright":  &cfg.FrontMatter.Copyright,
		"no-toc":        &cfg.FrontMatter.TOC,
	} {
		if f.Changed(flag) {
			off, _ := f.GetBool(flag)
			*dst = manuscript.Bool(!off)
		}
	}
	if f.Changed("dedication") {
		text, _ := f.GetString("dedication")
		cfg.FrontMatter.DedicationText = text
		cfg.FrontMatter.Dedication = manuscript.Bool(strings.TrimSpace(text) != "")
	}
	return cfg, nil
}

// readCLIOptions collects the options of a manuscript command. An empty ext
// leaves OutputPath empty unless --output is set.
func readCLIOptions(cmd *cobra.Command, args []string, ext string) (*cliOptions, error) {
	logger, err := readLogger(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := readFormatConfig(cmd)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	opts := &cliOptions{
		InputPath: args[0],
		Config:    cfg,
		Logger:    logger,
	}
	opts.OutputPath, _ = f.GetString("output")
	if opts.OutputPath == "" && ext != "" {
		opts.OutputPath = defaultOutputPath(opts.InputPath, ext)
	}
	if name, _ := f.GetString("input-format"); name != "" {
		format, err := parser.ParseFormat(name)
		if err != nil {
			return nil, fmt.Errorf("--input-format: %w", err)
		}
		opts.InputFormat = format
	}
	if f.Lookup("compress") != nil {
		opts.Compress, _ = f.GetBool("compress")
	}
	if f.Lookup("markdown") != nil {
		opts.Markdown, _ = f.GetBool("markdown")
	}
	return opts, nil
}

func readLogger(cmd *cobra.Command) (*slog.Logger, error) {
	f := cmd.Flags()
	level, _ := f.GetString("log-level")
	format, _ := f.GetString("log-format")
	verbose, _ := f.GetBool("verbose")

	if _, ok := parseLevel(level); !ok {
		return nil, fmt.Errorf("--log-level must be one of: debug, info, warn, error")
	}
	switch strings.ToLower(format) {
	case "text", "json":
	default:
		return nil, fmt.Errorf("--log-format must be one of: text, json")
	}
	if verbose {
		level = "debug"
	}
	return buildLogger(cmd.ErrOrStderr(), level, format), nil
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

func buildLogger(w io.Writer, level, format string) *slog.Logger {
	lvl, _ := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func defaultOutputPath(input, ext string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "." + ext
}

func newPipeline(opts *cliOptions) *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		Format:   opts.InputFormat,
		Name:     opts.InputPath,
		Config:   opts.Config,
		Compress: opts.Compress,
		Logger:   opts.Logger,
	})
}

// writeOutput writes body to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, body []byte) error {
	if path == "" {
		_, err := w.Write(body)
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
