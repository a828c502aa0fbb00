// Package layout paginates structured manuscript content into a KDP
// print-ready PDF.
//
// Generation runs the body flow twice. The first pass draws nothing and
// records the page every heading lands on; the table of contents is
// written from those numbers, and the second pass then draws the body
// with the same flow, so the listed pages match the printed ones.
package layout

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

// Result is a generated interior.
type Result struct {
	PDF       []byte
	PageCount int

	FrontMatterPages int
	BodyPages        int
	// PageLabels is the number of body pages carrying a printed number.
	PageLabels int

	// TOC holds the entries predicted by the simulation pass.
	TOC []TocEntry
	// Placed holds the same headings as recorded while drawing.
	Placed []TocEntry
}

// Options tunes a generation call.
type Options struct {
	Logger *slog.Logger
	// Now stamps the PDF and supplies the default copyright year.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Generate lays out content with cfg. cfg is expected to have passed
// through FormatConfig.Normalize; only an unknown trim size is rejected.
func Generate(content *manuscript.Content, cfg manuscript.FormatConfig) (*Result, error) {
	return GenerateWithOptions(content, cfg, Options{})
}

// GenerateWithOptions is Generate with explicit options.
func GenerateWithOptions(content *manuscript.Content, cfg manuscript.FormatConfig, opts Options) (*Result, error) {
	opts.defaults()
	log := opts.Logger

	trim, ok := manuscript.LookupTrimSize(cfg.TrimSize)
	if !ok {
		return nil, &manuscript.LayoutError{
			Op:  "geometry",
			Err: fmt.Errorf("%w: %q", manuscript.ErrUnknownTrimSize, cfg.TrimSize),
		}
	}
	geo := NewGeometry(trim, content.EstimatedPageCount, cfg.Bleed)
	ty := newTypography(cfg, log)
	fm := content.FrontMatter.Merge(cfg)
	now := opts.Now()
	year := cfg.Year
	if year == 0 {
		year = now.Year()
	}
	log.Debug("page geometry",
		"trim", cfg.TrimSize,
		"width", geo.PageWidth,
		"height", geo.PageHeight,
		"gutter", geo.Gutter,
		"column", geo.ColumnWidth)

	m := newPDFMeasurer()
	images := prepareImages(content.Chapters, newImagePreparer(geo.ColumnWidth), log)

	sim := &flow{geo: geo, ty: ty, m: m, out: discardSink{}, images: images}
	simEnd := sim.run(content.Chapters)
	if err := m.Err(); err != nil {
		return nil, &manuscript.LayoutError{Op: "fonts", Err: fmt.Errorf("%w: %v", manuscript.ErrFontEmbedding, err)}
	}
	log.Debug("simulated body", "pages", simEnd.Page, "labels", simEnd.Labels, "toc", len(sim.entries))

	doc := newDocument(geo, m, fm, now)
	doc.frontMatter(fm, cfg.FrontMatter, sim.entries, ty, year)
	front := doc.pages

	body := &flow{geo: geo, ty: ty, m: m, out: newPDFSink(doc, ty, fm), images: images}
	end := body.run(content.Chapters)
	if doc.pages == 0 {
		doc.addPage()
	}
	if err := doc.pdf.Error(); err != nil {
		return nil, &manuscript.LayoutError{Op: "render", Err: fmt.Errorf("%w: %v", manuscript.ErrFontEmbedding, err)}
	}

	pdf, err := doc.output()
	if err != nil {
		return nil, &manuscript.LayoutError{Op: "output", Err: err}
	}
	log.Debug("generated interior", "pages", doc.pages, "front", front, "body", end.Page, "bytes", len(pdf))

	return &Result{
		PDF:              pdf,
		PageCount:        doc.pages,
		FrontMatterPages: front,
		BodyPages:        end.Page,
		PageLabels:       end.Labels,
		TOC:              sim.entries,
		Placed:           body.entries,
	}, nil
}

func newTypography(cfg manuscript.FormatConfig, log *slog.Logger) typography {
	bodyFamily, ok := ResolveFamily(cfg.BodyFont)
	if !ok && cfg.BodyFont != "" {
		log.Warn("unknown body font, using standard serif", "font", cfg.BodyFont)
	}
	headingFamily := bodyFamily
	if cfg.HeadingFont != "" {
		if headingFamily, ok = ResolveFamily(cfg.HeadingFont); !ok {
			log.Warn("unknown heading font, using standard serif", "font", cfg.HeadingFont)
		}
	}

	size := cfg.FontSize
	if size <= 0 {
		size = manuscript.DefaultFontSize
	}
	spacing := cfg.LineSpacing
	if spacing <= 0 {
		spacing = manuscript.DefaultLineSpacing
	}

	ty := typography{
		body:    Font{Family: bodyFamily, Size: size},
		heading: Font{Family: headingFamily, Size: size},
		leading: size * lineHeightFactor * spacing,
	}
	if cfg.ParagraphStyle == manuscript.StyleNonfiction {
		ty.gap = nonfictionGap
	} else {
		ty.indent = fictionIndent
	}
	return ty
}
