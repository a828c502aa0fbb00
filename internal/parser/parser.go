// Package parser turns a manuscript (DOCX, EPUB or Markdown) into the
// structured content model.
//
// Every input is first converted to HTML, sanitized, and linearized into
// heading, paragraph and image segments. Segments are then folded into
// chapters. Documents without heading markup go through the heading
// detectors before falling back to a single chapter.
package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/yuanying/kdpforge/internal/docx"
	"github.com/yuanying/kdpforge/internal/epub"
	"github.com/yuanying/kdpforge/internal/manuscript"
)

// Issues reported in Content.DetectedIssues.
const (
	IssueNoHeadings   = "No chapter headings detected; entire document treated as one chapter."
	IssueIntroduction = `Content before the first heading was placed in an "Introduction" chapter.`
)

// Options controls parsing.
type Options struct {
	// Format of the input. Detected from Name and the content when empty.
	Format Format
	// Name is the original file name, used for format detection.
	Name string
	// Detectors replaces DefaultDetectors when non-nil.
	Detectors []Detector
	Logger    *slog.Logger
}

func (o *Options) defaults() {
	if o.Detectors == nil {
		o.Detectors = DefaultDetectors()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Result is the parsed content together with the sanitized HTML it was
// read from.
type Result struct {
	Content *manuscript.Content
	HTML    string
}

// Parse parses a manuscript into structured content. Unreadable input
// fails with a *manuscript.ParseError.
func Parse(data []byte, opts Options) (*manuscript.Content, error) {
	res, err := Convert(data, opts)
	if err != nil {
		return nil, err
	}
	return res.Content, nil
}

// Convert is Parse that also returns the intermediate HTML.
func Convert(data []byte, opts Options) (*Result, error) {
	opts.defaults()
	log := opts.Logger

	format := opts.Format
	if format == "" {
		format = DetectFormat(opts.Name, data)
	}

	var (
		raw     string
		fm      manuscript.FrontMatter
		skipped int
	)
	switch format {
	case FormatDOCX:
		doc, err := docx.ToHTML(data)
		if err != nil {
			return nil, manuscript.NewParseError("docx", err)
		}
		raw, skipped = doc.HTML, doc.Skipped
		fm.Title, fm.Author = doc.Title, doc.Author
	case FormatEPUB:
		doc, err := epub.ToHTML(data)
		if err != nil {
			return nil, manuscript.NewParseError("epub", fmt.Errorf("%w: %w", manuscript.ErrCorruptPackage, err))
		}
		raw, skipped = doc.HTML, doc.Skipped
		fm.Title, fm.Author, fm.Copyright = doc.Title, doc.Author, doc.Rights
		fm.Dedication = doc.Dedication
	case FormatMarkdown:
		raw, fm = markdownToHTML(data)
	case FormatUnknown:
		return nil, manuscript.NewParseError("detect", fmt.Errorf("%w: unrecognized manuscript %q", manuscript.ErrCorruptPackage, opts.Name))
	default:
		return nil, manuscript.NewParseError("detect", fmt.Errorf("%w: unsupported format %q", manuscript.ErrCorruptPackage, format))
	}
	log.Debug("converted manuscript to HTML", "format", format, "bytes", len(raw))

	clean := Sanitize(raw)
	if dropped := countImages(raw) - countImages(clean); dropped > 0 {
		log.Debug("sanitizer dropped images", "count", dropped)
		skipped += dropped
	}
	segs, errs := linearize(clean)
	for _, err := range errs {
		log.Debug("skipping image", "error", err)
	}
	skipped += len(errs)

	content := &manuscript.Content{
		FrontMatter:    fm,
		Chapters:       []manuscript.Chapter{},
		DetectedIssues: []string{},
	}
	fold(content, segs, opts.Detectors, log)
	if skipped > 0 {
		content.AddIssue(fmt.Sprintf("%d embedded image(s) could not be read and were skipped.", skipped))
	}
	estimate(content)

	log.Debug("parsed manuscript",
		"chapters", len(content.Chapters),
		"words", content.WordCount(),
		"issues", len(content.DetectedIssues))
	return &Result{Content: content, HTML: clean}, nil
}

// fold groups segments into chapters.
func fold(content *manuscript.Content, segs []segment, detectors []Detector, log *slog.Logger) {
	if !hasHeading(segs) {
		for i := range segs {
			if segs[i].kind != segParagraph {
				continue
			}
			name, ok := detect(detectors, segs[i].text, segs[i].hints)
			if !ok {
				continue
			}
			log.Debug("detected chapter heading", "detector", name, "line", segs[i].text)
			segs[i].kind, segs[i].level = segHeading, 1
			content.AddIssue(fmt.Sprintf("Treated %q as a chapter heading (%s).", segs[i].text, name))
		}
	}

	if !hasHeading(segs) {
		if len(segs) == 0 {
			return
		}
		ch := newChapter(1, "Chapter 1", 1)
		for _, s := range segs {
			appendSegment(&ch, s)
		}
		content.Chapters = append(content.Chapters, ch)
		content.AddIssue(IssueNoHeadings)
		return
	}

	for _, s := range segs {
		if s.kind == segHeading {
			content.Chapters = append(content.Chapters, newChapter(len(content.Chapters)+1, s.text, s.level))
			continue
		}
		if len(content.Chapters) == 0 {
			if s.kind == segParagraph && echoesFrontMatter(s.text, content.FrontMatter) {
				log.Debug("dropping title page text", "text", s.text)
				continue
			}
			content.Chapters = append(content.Chapters, newChapter(1, "Introduction", 1))
			content.AddIssue(IssueIntroduction)
		}
		appendSegment(&content.Chapters[len(content.Chapters)-1], s)
	}
}

func newChapter(number int, title string, level int) manuscript.Chapter {
	if level < 1 {
		level = 1
	}
	return manuscript.Chapter{
		Number:     number,
		Title:      title,
		Level:      level,
		Paragraphs: []manuscript.Paragraph{},
	}
}

func appendSegment(ch *manuscript.Chapter, s segment) {
	switch s.kind {
	case segImage:
		ch.Images = append(ch.Images, s.image)
	default:
		ch.Paragraphs = append(ch.Paragraphs, manuscript.Paragraph{
			Text:      s.text,
			Bold:      s.hints.Bold,
			Italic:    s.hints.Italic,
			Underline: s.hints.Underline,
		})
	}
}

func hasHeading(segs []segment) bool {
	for _, s := range segs {
		if s.kind == segHeading {
			return true
		}
	}
	return false
}

// echoesFrontMatter reports whether a paragraph before the first heading
// only repeats the title or author, as a typed title page does.
func echoesFrontMatter(text string, fm manuscript.FrontMatter) bool {
	candidates := []string{fm.Title}
	if fm.Author != "" {
		candidates = append(candidates, fm.Author, "by "+fm.Author)
	}
	for _, v := range candidates {
		if v = CleanText(v); v != "" && strings.EqualFold(text, v) {
			return true
		}
	}
	return false
}

// estimate sets the page estimate and reports counts outside KDP's limits.
func estimate(content *manuscript.Content) {
	words := content.WordCount()
	raw := words / manuscript.WordsPerPage
	content.EstimatedPageCount = manuscript.EstimatePages(words)

	switch {
	case raw < manuscript.MinKDPPages:
		content.AddIssue(fmt.Sprintf(
			"Estimated length of %d pages is below the KDP minimum of %d pages.",
			raw, manuscript.MinKDPPages))
	case raw > manuscript.MaxKDPPages:
		content.AddIssue(fmt.Sprintf(
			"Estimated length of %d pages exceeds the KDP maximum of %d pages.",
			raw, manuscript.MaxKDPPages))
	}
}
