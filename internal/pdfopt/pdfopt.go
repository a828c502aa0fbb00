// Package pdfopt compresses and inspects finished PDFs with pdfcpu.
package pdfopt

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"
)

func init() {
	// Everything runs from memory; pdfcpu must not create a config dir.
	api.DisableConfigDir()
}

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Stats describes a compression run.
type Stats struct {
	Pages        int
	OriginalSize int
	OutputSize   int
}

// Ratio is the output size as a fraction of the original.
func (s Stats) Ratio() float64 {
	if s.OriginalSize == 0 {
		return 1
	}
	return float64(s.OutputSize) / float64(s.OriginalSize)
}

// Compress optimizes data, dropping duplicate objects and unused
// resources. When optimizing does not shrink the file the original is
// returned unchanged.
func Compress(data []byte, log *slog.Logger) ([]byte, Stats, error) {
	if log == nil {
		log = slog.Default()
	}
	stats := Stats{OriginalSize: len(data)}
	conf := configuration()

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, conf); err != nil {
		return nil, stats, fmt.Errorf("failed to optimize PDF: %w", err)
	}
	result := out.Bytes()
	if len(result) >= len(data) {
		log.Debug("optimized PDF is not smaller, keeping original", "original", len(data), "optimized", len(result))
		result = data
	}

	pages, err := api.PageCount(bytes.NewReader(result), conf)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to count pages: %w", err)
	}
	stats.Pages = pages
	stats.OutputSize = len(result)
	log.Debug("compressed PDF", "pages", pages, "original", stats.OriginalSize, "output", stats.OutputSize)
	return result, stats, nil
}

// PageCount returns the number of pages in data.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), configuration())
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return n, nil
}

// PageTexts returns the text drawn on each page, one string per page and
// one line per text-showing operator.
func PageTexts(data []byte) ([]string, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), configuration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	texts := make([]string, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		texts[pageNr-1] = pageText(ctx, pageNr)
	}
	return texts, nil
}

// pageText is empty for pages without a readable content stream.
func pageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	stream, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	return extractText(stream)
}

var (
	showTextRe  = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)\s*Tj`)
	showArrayRe = regexp.MustCompile(`\[((?:\\.|[^\]])*)\]\s*TJ`)
	stringRe    = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)
)

// extractText collects the string operands of Tj and TJ operators. Strings
// are read as WinAnsi, which is what the standard fonts use.
func extractText(stream []byte) string {
	type match struct {
		pos  int
		text string
	}
	var found []match
	for _, m := range showTextRe.FindAllSubmatchIndex(stream, -1) {
		found = append(found, match{m[0], decodePDFString(stream[m[2]:m[3]])})
	}
	for _, m := range showArrayRe.FindAllSubmatchIndex(stream, -1) {
		var b strings.Builder
		for _, s := range stringRe.FindAllSubmatch(stream[m[2]:m[3]], -1) {
			b.WriteString(decodePDFString(s[1]))
		}
		found = append(found, match{m[0], b.String()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	lines := make([]string, len(found))
	for i, m := range found {
		lines[i] = m.text
	}
	return strings.Join(lines, "\n")
}

// decodePDFString resolves the escape sequences of a PDF literal string.
func decodePDFString(raw []byte) string {
	var b []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 >= len(raw) {
			b = append(b, raw[i])
			continue
		}
		i++
		switch c := raw[i]; c {
		case 'n':
			b = append(b, '\n')
		case 'r':
			b = append(b, '\r')
		case 't':
			b = append(b, '\t')
		case 'b':
			b = append(b, '\b')
		case 'f':
			b = append(b, '\f')
		default:
			if c >= '0' && c <= '7' {
				val := int(c - '0')
				for k := 0; k < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; k++ {
					i++
					val = val*8 + int(raw[i]-'0')
				}
				b = append(b, byte(val))
				continue
			}
			b = append(b, c)
		}
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
