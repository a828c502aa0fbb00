package layout

import (
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Measurer reports the rendered width of text.
type Measurer interface {
	Width(f Font, text string) float64
}

// pdfMeasurer measures with gofpdf's core font metrics. It owns a private
// document so measuring never touches the output.
type pdfMeasurer struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
	cur Font
}

func newPDFMeasurer() *pdfMeasurer {
	pdf := gofpdf.New("P", "pt", "Letter", "")
	return &pdfMeasurer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (m *pdfMeasurer) Width(f Font, text string) float64 {
	if f != m.cur {
		m.pdf.SetFont(f.Family, f.Style(), f.Size)
		m.cur = f
	}
	return m.pdf.GetStringWidth(m.tr(text))
}

func (m *pdfMeasurer) Err() error { return m.pdf.Error() }

// wrap breaks text into lines no wider than width, greedily. The first
// line is narrowed by indent. A single word wider than the line is kept
// on a line of its own.
func wrap(m Measurer, f Font, text string, width, indent float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	avail := width - indent
	for _, w := range words[1:] {
		candidate := line + " " + w
		if m.Width(f, candidate) <= avail {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = w
		avail = width
	}
	return append(lines, line)
}

// placedWord is a word with its offset from the start of the line.
type placedWord struct {
	X    float64
	Text string
}

// justify spreads the words of line across width. The last line of a
// paragraph and single-word lines are set ragged.
func justify(m Measurer, f Font, line string, width float64, last bool) []placedWord {
	words := strings.Fields(line)
	if last || len(words) < 2 {
		return []placedWord{{X: 0, Text: line}}
	}

	total := 0.0
	widths := make([]float64, len(words))
	for i, w := range words {
		widths[i] = m.Width(f, w)
		total += widths[i]
	}
	gap := (width - total) / float64(len(words)-1)
	if space := m.Width(f, " "); gap < space {
		gap = space
	}

	out := make([]placedWord, len(words))
	x := 0.0
	for i, w := range words {
		out[i] = placedWord{X: x, Text: w}
		x += widths[i] + gap
	}
	return out
}
