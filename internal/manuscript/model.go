// Package manuscript defines the structured content model shared by the
// manuscript parser and every output generator (print PDF, EPUB, review DOCX).
package manuscript

import (
	"fmt"
	"strings"
)

const (
	// WordsPerPage is the words-per-page constant behind EstimatePages.
	WordsPerPage = 300
	// MinKDPPages is KDP's minimum page count for a paperback interior.
	MinKDPPages = 24
	// MaxKDPPages is KDP's maximum page count for most trim sizes.
	MaxKDPPages = 828
)

// Paragraph is a single body paragraph. Flags are set when the whole
// paragraph carries that emphasis.
type Paragraph struct {
	Text      string `json:"text"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
}

// Image is an embedded raster image carried by value.
type Image struct {
	Data        []byte `json:"-"`
	ContentType string `json:"contentType"`
	Alt         string `json:"alt,omitempty"`
}

// Chapter is a heading-delimited section of the manuscript.
// Level 1 opens a new page in print, levels 2 and 3 flow inline.
type Chapter struct {
	Number     int         `json:"number"`
	Title      string      `json:"title"`
	Level      int         `json:"level"`
	Paragraphs []Paragraph `json:"paragraphs"`
	Images     []Image     `json:"images,omitempty"`
}

// WordCount returns the number of words across all paragraphs.
func (c Chapter) WordCount() int {
	n := 0
	for _, p := range c.Paragraphs {
		n += len(strings.Fields(p.Text))
	}
	return n
}

// FrontMatter holds book-level metadata.
type FrontMatter struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	Copyright  string `json:"copyright,omitempty"`
	ISBN       string `json:"isbn,omitempty"`
	Dedication string `json:"dedication,omitempty"`
}

// Merge returns a copy of f with every non-empty config override applied.
// Config values always win over inferred metadata.
func (f FrontMatter) Merge(cfg FormatConfig) FrontMatter {
	if cfg.Title != "" {
		f.Title = cfg.Title
	}
	if cfg.Author != "" {
		f.Author = cfg.Author
	}
	if cfg.Copyright != "" {
		f.Copyright = cfg.Copyright
	}
	if cfg.ISBN != "" {
		f.ISBN = cfg.ISBN
	}
	if cfg.FrontMatter.DedicationText != "" {
		f.Dedication = cfg.FrontMatter.DedicationText
	}
	return f
}

// CopyrightLine returns the explicit copyright text, or a generated
// "Copyright © <year> <author>" line.
func (f FrontMatter) CopyrightLine(year int) string {
	if f.Copyright != "" {
		return f.Copyright
	}
	return strings.TrimSpace(fmt.Sprintf("Copyright © %d %s", year, f.Author))
}

// Content is the root artifact produced by the parser.
type Content struct {
	FrontMatter        FrontMatter `json:"frontMatter"`
	Chapters           []Chapter   `json:"chapters"`
	EstimatedPageCount int         `json:"estimatedPageCount"`
	DetectedIssues     []string    `json:"detectedIssues"`
}

// WordCount returns the number of words across all chapters.
func (c *Content) WordCount() int {
	n := 0
	for _, ch := range c.Chapters {
		n += ch.WordCount()
	}
	return n
}

// AddIssue records a soft issue for display alongside the output.
func (c *Content) AddIssue(issue string) {
	c.DetectedIssues = append(c.DetectedIssues, issue)
}

// EstimatePages converts a word count into a page estimate, floored at
// the KDP minimum.
func EstimatePages(words int) int {
	pages := words / WordsPerPage
	if pages < MinKDPPages {
		return MinKDPPages
	}
	return pages
}
