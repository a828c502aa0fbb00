package pipeline

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/yuanying/kdpforge/internal/manuscript"
	"github.com/yuanying/kdpforge/internal/parser"
	"github.com/yuanying/kdpforge/internal/pdfopt"
)

const manuscriptMD = `---
title: The Lighthouse
author: Jane Doe
---

# Arrival

The boat came in at dusk, and nobody was waiting on the pier.

She carried the lamp oil up the hill alone.

## The Stairs

One hundred and twelve steps, *counted twice*.

# Departure

The tide took the boat out before dawn.
`

func testPipeline(cfg manuscript.FormatConfig) *Pipeline {
	return New(Options{
		Format: parser.FormatMarkdown,
		Config: cfg,
		Now:    func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) },
	})
}

func TestPipeline_Format(t *testing.T) {
	p := testPipeline(manuscript.FormatConfig{TrimSize: "4x4"})

	out, err := p.Format(context.Background(), []byte(manuscriptMD))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if out.Config.TrimSize != manuscript.DefaultTrimSize {
		t.Errorf("TrimSize = %q, want fallback %q", out.Config.TrimSize, manuscript.DefaultTrimSize)
	}
	issues := out.Issues()
	if len(issues) == 0 || !strings.Contains(issues[len(issues)-1], `unknown trim size "4x4"`) {
		t.Errorf("Issues() = %q, want the trim warning last", issues)
	}
	if out.Compression != nil {
		t.Error("Compression set without Compress")
	}
	if !bytes.Equal(out.PDF, out.Layout.PDF) {
		t.Error("uncompressed PDF differs from the layout output")
	}
	if len(out.Layout.TOC) != 3 {
		t.Errorf("TOC = %+v, want 3 entries", out.Layout.TOC)
	}
	if out.PageCount() != out.Layout.PageCount {
		t.Errorf("PageCount() = %d, want %d", out.PageCount(), out.Layout.PageCount)
	}
}

func TestPipeline_FormatCompressed(t *testing.T) {
	p := testPipeline(manuscript.FormatConfig{})
	p.Options.Compress = true

	out, err := p.Format(context.Background(), []byte(manuscriptMD))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if out.Compression == nil {
		t.Fatal("Compression = nil")
	}
	if out.Compression.Pages != out.Layout.PageCount {
		t.Errorf("compressed pages = %d, want %d", out.Compression.Pages, out.Layout.PageCount)
	}
	if len(out.PDF) > len(out.Layout.PDF) {
		t.Errorf("compressed PDF grew: %d > %d", len(out.PDF), len(out.Layout.PDF))
	}
	n, err := pdfopt.PageCount(out.PDF)
	if err != nil || n != out.PageCount() {
		t.Errorf("final PDF pages = %d (err %v), want %d", n, err, out.PageCount())
	}
}

func TestPipeline_ParseError(t *testing.T) {
	p := New(Options{Format: parser.FormatDOCX})
	_, err := p.Format(context.Background(), []byte("this is not a zip"))
	if !manuscript.IsParseError(err) {
		t.Fatalf("error = %v, want ParseError", err)
	}
}

func TestPipeline_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := testPipeline(manuscript.FormatConfig{})
	if _, err := p.Format(ctx, []byte(manuscriptMD)); !errors.Is(err, context.Canceled) {
		t.Errorf("Format() error = %v, want context.Canceled", err)
	}
	if _, err := p.EPUB(ctx, []byte(manuscriptMD), &bytes.Buffer{}); !errors.Is(err, context.Canceled) {
		t.Errorf("EPUB() error = %v, want context.Canceled", err)
	}
}

func chapterTitles(c *manuscript.Content) []string {
	var out []string
	for _, ch := range c.Chapters {
		out = append(out, ch.Title)
	}
	return out
}

func TestPipeline_EPUBRoundTrip(t *testing.T) {
	p := testPipeline(manuscript.FormatConfig{Author: "J. Doe"})
	var buf bytes.Buffer
	src, err := p.EPUB(context.Background(), []byte(manuscriptMD), &buf)
	if err != nil {
		t.Fatalf("EPUB() error = %v", err)
	}
	if src.FrontMatter.Author != "Jane Doe" {
		t.Errorf("parsed content was modified: author %q", src.FrontMatter.Author)
	}

	got, err := parser.Parse(buf.Bytes(), parser.Options{Name: "book.epub"})
	if err != nil {
		t.Fatalf("Parse(epub) error = %v", err)
	}
	if got.FrontMatter.Author != "J. Doe" {
		t.Errorf("EPUB author = %q, want the config override", got.FrontMatter.Author)
	}
	if !slices.Equal(chapterTitles(got), chapterTitles(src)) {
		t.Errorf("chapters = %q, want %q", chapterTitles(got), chapterTitles(src))
	}
}

func TestPipeline_ReviewRoundTrip(t *testing.T) {
	p := testPipeline(manuscript.FormatConfig{})
	var buf bytes.Buffer
	src, err := p.Review(context.Background(), []byte(manuscriptMD), &buf)
	if err != nil {
		t.Fatalf("Review() error = %v", err)
	}

	got, err := parser.Parse(buf.Bytes(), parser.Options{Name: "review.docx"})
	if err != nil {
		t.Fatalf("Parse(docx) error = %v", err)
	}
	if !slices.Equal(chapterTitles(got), chapterTitles(src)) {
		t.Errorf("chapters = %q, want %q", chapterTitles(got), chapterTitles(src))
	}
	if got.FrontMatter.Title != "The Lighthouse" {
		t.Errorf("title = %q", got.FrontMatter.Title)
	}
}

func TestPipeline_MarkdownRoundTrip(t *testing.T) {
	p := testPipeline(manuscript.FormatConfig{})
	md, src, err := p.Markdown(context.Background(), []byte(manuscriptMD))
	if err != nil {
		t.Fatalf("Markdown() error = %v", err)
	}
	if !strings.HasPrefix(md, "---\n") || !strings.Contains(md, "title: The Lighthouse") {
		t.Errorf("missing front matter block:\n%s", md)
	}
	if !strings.Contains(md, "# Arrival") || !strings.Contains(md, "*counted twice*") {
		t.Errorf("unexpected markdown:\n%s", md)
	}

	got, err := parser.Parse([]byte(md), parser.Options{Format: parser.FormatMarkdown})
	if err != nil {
		t.Fatalf("Parse(markdown) error = %v", err)
	}
	if got.FrontMatter != src.FrontMatter {
		t.Errorf("front matter = %+v, want %+v", got.FrontMatter, src.FrontMatter)
	}
	if !slices.Equal(chapterTitles(got), chapterTitles(src)) {
		t.Errorf("chapters = %q, want %q", chapterTitles(got), chapterTitles(src))
	}
}

func TestPipeline_Compress(t *testing.T) {
	p := testPipeline(manuscript.FormatConfig{})
	if _, _, err := p.Compress(context.Background(), []byte("plain text")); err == nil {
		t.Error("Compress() error = nil for non-PDF input")
	}

	out, err := p.Format(context.Background(), []byte(manuscriptMD))
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	data, stats, err := p.Compress(context.Background(), out.PDF)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if stats.Pages != out.Layout.PageCount || len(data) != stats.OutputSize {
		t.Errorf("stats = %+v, pages %d", stats, out.Layout.PageCount)
	}
}
