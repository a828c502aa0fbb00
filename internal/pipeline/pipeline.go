// Package pipeline runs a manuscript through the parser and one of the
// output generators. The CLI and the HTTP server share it.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/yuanying/kdpforge/internal/epub"
	"github.com/yuanying/kdpforge/internal/layout"
	"github.com/yuanying/kdpforge/internal/manuscript"
	"github.com/yuanying/kdpforge/internal/parser"
	"github.com/yuanying/kdpforge/internal/pdfopt"
	"github.com/yuanying/kdpforge/internal/review"
)

// Options holds options for a pipeline run.
type Options struct {
	// Format of the input; detected from Name and the content when empty.
	Format parser.Format
	// Name is the original file name of the input.
	Name string
	// Config is the formatting intent. It is normalized before use.
	Config manuscript.FormatConfig
	// Compress runs the generated PDF through pdfcpu's optimizer.
	Compress bool
	Logger   *slog.Logger
	// Now stamps generated files. Defaults to time.Now.
	Now func() time.Time
}

// Pipeline orchestrates manuscript conversion.
type Pipeline struct {
	Options Options
}

// New creates a new pipeline.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{Options: opts}
}

// Output is the result of a print run.
type Output struct {
	Content *manuscript.Content
	// Config is the normalized config the layout ran with.
	Config   manuscript.FormatConfig
	Warnings []string
	Layout   *layout.Result
	// PDF is the final file, compressed when requested.
	PDF         []byte
	Compression *pdfopt.Stats
}

// Issues returns the parser issues followed by the config warnings.
func (o *Output) Issues() []string {
	out := make([]string, 0, len(o.Content.DetectedIssues)+len(o.Warnings))
	out = append(out, o.Content.DetectedIssues...)
	return append(out, o.Warnings...)
}

// PageCount is the page count of the final PDF.
func (o *Output) PageCount() int {
	if o.Compression != nil && o.Compression.Pages > 0 {
		return o.Compression.Pages
	}
	return o.Layout.PageCount
}

// Parse converts manuscript bytes into structured content together with
// the sanitized HTML it was read from.
func (p *Pipeline) Parse(ctx context.Context, data []byte) (*parser.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return parser.Convert(data, parser.Options{
		Format: p.Options.Format,
		Name:   p.Options.Name,
		Logger: p.Options.Logger,
	})
}

// config normalizes the configured intent and logs every replaced value.
func (p *Pipeline) config() (manuscript.FormatConfig, []string) {
	cfg, warnings := p.Options.Config.Normalize()
	for _, w := range warnings {
		p.Options.Logger.Warn("config adjusted", "warning", w)
	}
	return cfg, warnings
}

// Format parses a manuscript and lays it out as a KDP interior PDF.
func (p *Pipeline) Format(ctx context.Context, data []byte) (*Output, error) {
	res, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	return p.FormatContent(ctx, res.Content)
}

// FormatContent lays out already parsed content.
func (p *Pipeline) FormatContent(ctx context.Context, content *manuscript.Content) (*Output, error) {
	log := p.Options.Logger
	cfg, warnings := p.config()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := layout.GenerateWithOptions(content, cfg, layout.Options{Logger: log, Now: p.Options.Now})
	if err != nil {
		return nil, err
	}
	out := &Output{
		Content:  content,
		Config:   cfg,
		Warnings: warnings,
		Layout:   result,
		PDF:      result.PDF,
	}

	if p.Options.Compress {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		compressed, stats, err := pdfopt.Compress(result.PDF, log)
		if err != nil {
			return nil, fmt.Errorf("failed to compress PDF: %w", err)
		}
		out.PDF = compressed
		out.Compression = &stats
	}

	log.Info("formatted manuscript",
		"pages", out.PageCount(),
		"chapters", len(content.Chapters),
		"trim", cfg.TrimSize,
		"bytes", len(out.PDF))
	return out, nil
}

// withFrontMatter returns a shallow copy of content with the config's
// front matter overrides applied.
func withFrontMatter(content *manuscript.Content, cfg manuscript.FormatConfig) *manuscript.Content {
	c := *content
	c.FrontMatter = c.FrontMatter.Merge(cfg)
	return &c
}

// EPUB parses a manuscript and writes it to w as an EPUB 3 package.
func (p *Pipeline) EPUB(ctx context.Context, data []byte, w io.Writer) (*manuscript.Content, error) {
	res, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, _ := p.config()
	err = epub.Write(w, withFrontMatter(res.Content, cfg), epub.WriteOptions{
		Modified: p.Options.Now(),
		Year:     cfg.Year,
		Logger:   p.Options.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write EPUB: %w", err)
	}
	return res.Content, nil
}

// Review parses a manuscript and writes it to w as a review DOCX.
func (p *Pipeline) Review(ctx context.Context, data []byte, w io.Writer) (*manuscript.Content, error) {
	res, err := p.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg, _ := p.config()
	err = review.Write(w, res.Content, cfg, review.Options{Modified: p.Options.Now(), Logger: p.Options.Logger})
	if err != nil {
		return nil, fmt.Errorf("failed to write review document: %w", err)
	}
	return res.Content, nil
}

// Markdown parses a manuscript and renders its sanitized HTML as
// CommonMark behind a YAML front matter block. Images stay inline as data
// URIs, so the output parses back into the same content.
func (p *Pipeline) Markdown(ctx context.Context, data []byte) (string, *manuscript.Content, error) {
	res, err := p.Parse(ctx, data)
	if err != nil {
		return "", nil, err
	}
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
	md, err := conv.ConvertString(res.HTML)
	if err != nil {
		return "", nil, fmt.Errorf("converting HTML to markdown: %w", err)
	}
	block, err := parser.FrontMatterBlock(res.Content.FrontMatter)
	if err != nil {
		return "", nil, err
	}
	return string(block) + md, res.Content, nil
}

// Compress optimizes an existing PDF.
func (p *Pipeline) Compress(ctx context.Context, data []byte) ([]byte, pdfopt.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, pdfopt.Stats{}, err
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, pdfopt.Stats{}, fmt.Errorf("input is not a PDF")
	}
	return pdfopt.Compress(data, p.Options.Logger)
}
