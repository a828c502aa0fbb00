package manuscript

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Paragraph styles.
const (
	StyleFiction    = "fiction"
	StyleNonfiction = "nonfiction"
)

// Defaults applied by Normalize.
const (
	DefaultTrimSize    = "6x9"
	DefaultFont        = "Times"
	DefaultFontSize    = 11.0
	DefaultLineSpacing = 1.15

	minFontSize    = 8.0
	maxFontSize    = 14.0
	minLineSpacing = 1.0
	maxLineSpacing = 2.0
)

// TrimSize is a KDP paperback trim in inches.
type TrimSize struct {
	Width  float64
	Height float64
}

// trimSizes lists the KDP paperback trims, keyed by identifier.
var trimSizes = map[string]TrimSize{
	"5x8":        {5, 8},
	"5.06x7.81":  {5.06, 7.81},
	"5.25x8":     {5.25, 8},
	"5.5x8.5":    {5.5, 8.5},
	"6x9":        {6, 9},
	"6.14x9.21":  {6.14, 9.21},
	"6.69x9.61":  {6.69, 9.61},
	"7x10":       {7, 10},
	"7.44x9.69":  {7.44, 9.69},
	"7.5x9.25":   {7.5, 9.25},
	"8x10":       {8, 10},
	"8.25x6":     {8.25, 6},
	"8.25x8.25":  {8.25, 8.25},
	"8.5x8.5":    {8.5, 8.5},
	"8.5x11":     {8.5, 11},
	"8.27x11.69": {8.27, 11.69},
}

// LookupTrimSize returns the trim for id.
func LookupTrimSize(id string) (TrimSize, bool) {
	t, ok := trimSizes[strings.ToLower(strings.TrimSpace(id))]
	return t, ok
}

// TrimSizeIDs returns all supported trim identifiers, sorted.
func TrimSizeIDs() []string {
	ids := make([]string, 0, len(trimSizes))
	for id := range trimSizes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FrontMatterOptions toggles the front matter pages. Nil toggles take their
// defaults: every page on except the dedication.
type FrontMatterOptions struct {
	TitlePage      *bool  `json:"titlePage,omitempty" yaml:"titlePage,omitempty"`
	Copyright      *bool  `json:"copyright,omitempty" yaml:"copyright,omitempty"`
	TOC            *bool  `json:"toc,omitempty" yaml:"toc,omitempty"`
	Dedication     *bool  `json:"dedication,omitempty" yaml:"dedication,omitempty"`
	DedicationText string `json:"dedicationText,omitempty" yaml:"dedicationText,omitempty"`
}

// ShowTitlePage reports whether the half-title and title pages are printed.
func (o FrontMatterOptions) ShowTitlePage() bool { return boolOr(o.TitlePage, true) }

// ShowCopyright reports whether the copyright page is printed.
func (o FrontMatterOptions) ShowCopyright() bool { return boolOr(o.Copyright, true) }

// ShowTOC reports whether the table of contents is printed.
func (o FrontMatterOptions) ShowTOC() bool { return boolOr(o.TOC, true) }

// ShowDedication reports whether the dedication toggle is on. The page is
// only printed when dedication text is present as well.
func (o FrontMatterOptions) ShowDedication() bool { return boolOr(o.Dedication, false) }

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Bool returns a pointer to b, for building FrontMatterOptions literals.
func Bool(b bool) *bool { return &b }

// FormatConfig is the user's formatting intent for one generation call.
type FormatConfig struct {
	TrimSize       string             `json:"trimSize" yaml:"trimSize"`
	BodyFont       string             `json:"bodyFont" yaml:"bodyFont"`
	HeadingFont    string             `json:"headingFont" yaml:"headingFont"`
	FontSize       float64            `json:"fontSize" yaml:"fontSize"`
	ParagraphStyle string             `json:"paragraphStyle" yaml:"paragraphStyle"`
	LineSpacing    float64            `json:"lineSpacing" yaml:"lineSpacing"`
	FrontMatter    FrontMatterOptions `json:"frontMatter" yaml:"frontMatter"`
	Bleed          bool               `json:"bleed" yaml:"bleed"`
	InteriorColor  string             `json:"interiorColor,omitempty" yaml:"interiorColor,omitempty"`
	PaperColor     string             `json:"paperColor,omitempty" yaml:"paperColor,omitempty"`

	// Front matter overrides; these win over document metadata.
	Title     string `json:"title,omitempty" yaml:"title,omitempty"`
	Author    string `json:"author,omitempty" yaml:"author,omitempty"`
	Copyright string `json:"copyright,omitempty" yaml:"copyright,omitempty"`
	ISBN      string `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	// Year printed on the copyright page; zero means the current year.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`
}

// Normalize validates cfg and fills in defaults, returning the effective
// config together with a warning for every value it had to replace.
// Unknown trim sizes fall back to DefaultTrimSize.
func (cfg FormatConfig) Normalize() (FormatConfig, []string) {
	var warnings []string

	trim := strings.ToLower(strings.TrimSpace(cfg.TrimSize))
	if trim == "" {
		trim = DefaultTrimSize
	} else if _, ok := trimSizes[trim]; !ok {
		warnings = append(warnings, fmt.Sprintf("unknown trim size %q, using %s", cfg.TrimSize, DefaultTrimSize))
		trim = DefaultTrimSize
	}
	cfg.TrimSize = trim

	if cfg.BodyFont == "" {
		cfg.BodyFont = DefaultFont
	}
	if cfg.HeadingFont == "" {
		cfg.HeadingFont = cfg.BodyFont
	}

	switch {
	case cfg.FontSize == 0:
		cfg.FontSize = DefaultFontSize
	case cfg.FontSize < minFontSize:
		warnings = append(warnings, fmt.Sprintf("font size %.1fpt below minimum, using %.0fpt", cfg.FontSize, minFontSize))
		cfg.FontSize = minFontSize
	case cfg.FontSize > maxFontSize:
		warnings = append(warnings, fmt.Sprintf("font size %.1fpt above maximum, using %.0fpt", cfg.FontSize, maxFontSize))
		cfg.FontSize = maxFontSize
	}

	switch {
	case cfg.LineSpacing == 0:
		cfg.LineSpacing = DefaultLineSpacing
	case cfg.LineSpacing < minLineSpacing:
		cfg.LineSpacing = minLineSpacing
	case cfg.LineSpacing > maxLineSpacing:
		cfg.LineSpacing = maxLineSpacing
	}

	style := strings.ToLower(strings.TrimSpace(cfg.ParagraphStyle))
	switch style {
	case StyleFiction, StyleNonfiction:
	case "":
		style = StyleFiction
	default:
		warnings = append(warnings, fmt.Sprintf("unknown paragraph style %q, using %s", cfg.ParagraphStyle, StyleFiction))
		style = StyleFiction
	}
	cfg.ParagraphStyle = style

	return cfg, warnings
}

// LoadConfig reads a YAML format config from path.
func LoadConfig(path string) (FormatConfig, error) {
	var cfg FormatConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
