package manuscript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEstimatePages_Floor(t *testing.T) {
	for _, words := range []int{0, 1, 299, 300, 7199, 7200, 7500, 100000, 1000000} {
		got := EstimatePages(words)
		if got < MinKDPPages {
			t.Fatalf("EstimatePages(%d) = %d, want >= %d", words, got, MinKDPPages)
		}
	}
	if got := EstimatePages(9000); got != 30 {
		t.Fatalf("EstimatePages(9000) = %d, want 30", got)
	}
	if got := EstimatePages(1300); got != MinKDPPages {
		t.Fatalf("EstimatePages(1300) = %d, want %d", got, MinKDPPages)
	}
}

func TestFrontMatterOptions_Defaults(t *testing.T) {
	var o FrontMatterOptions
	if !o.ShowTitlePage() || !o.ShowCopyright() || !o.ShowTOC() {
		t.Fatal("omitted toggles should default to true")
	}
	if o.ShowDedication() {
		t.Fatal("dedication should default to false")
	}

	o = FrontMatterOptions{TOC: Bool(false), Dedication: Bool(true)}
	if o.ShowTOC() {
		t.Fatal("explicit toc=false ignored")
	}
	if !o.ShowDedication() {
		t.Fatal("explicit dedication=true ignored")
	}
	if !o.ShowTitlePage() || !o.ShowCopyright() {
		t.Fatal("unrelated toggles should keep defaults")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg, warnings := FormatConfig{}.Normalize()
	if len(warnings) != 0 {
		t.Fatalf("Normalize() warnings = %v, want none", warnings)
	}
	if cfg.TrimSize != DefaultTrimSize {
		t.Errorf("TrimSize = %q, want %q", cfg.TrimSize, DefaultTrimSize)
	}
	if cfg.FontSize != DefaultFontSize {
		t.Errorf("FontSize = %v, want %v", cfg.FontSize, DefaultFontSize)
	}
	if cfg.LineSpacing != DefaultLineSpacing {
		t.Errorf("LineSpacing = %v, want %v", cfg.LineSpacing, DefaultLineSpacing)
	}
	if cfg.ParagraphStyle != StyleFiction {
		t.Errorf("ParagraphStyle = %q, want %q", cfg.ParagraphStyle, StyleFiction)
	}
	if cfg.BodyFont != DefaultFont || cfg.HeadingFont != DefaultFont {
		t.Errorf("fonts = %q/%q, want %q", cfg.BodyFont, cfg.HeadingFont, DefaultFont)
	}
}

func TestNormalize_ReplacesInvalidValues(t *testing.T) {
	cfg, warnings := FormatConfig{
		TrimSize:       "13x19",
		FontSize:       30,
		ParagraphStyle: "poetry",
		LineSpacing:    5,
	}.Normalize()

	if cfg.TrimSize != DefaultTrimSize {
		t.Errorf("TrimSize = %q, want %q", cfg.TrimSize, DefaultTrimSize)
	}
	if cfg.FontSize != maxFontSize {
		t.Errorf("FontSize = %v, want %v", cfg.FontSize, maxFontSize)
	}
	if cfg.ParagraphStyle != StyleFiction {
		t.Errorf("ParagraphStyle = %q", cfg.ParagraphStyle)
	}
	if cfg.LineSpacing != maxLineSpacing {
		t.Errorf("LineSpacing = %v", cfg.LineSpacing)
	}
	if len(warnings) != 3 {
		t.Fatalf("warnings = %v, want 3", warnings)
	}
}

func TestNormalize_KeepsKnownTrim(t *testing.T) {
	cfg, _ := FormatConfig{TrimSize: " 5.5X8.5 "}.Normalize()
	if cfg.TrimSize != "5.5x8.5" {
		t.Fatalf("TrimSize = %q, want 5.5x8.5", cfg.TrimSize)
	}
	if _, ok := LookupTrimSize(cfg.TrimSize); !ok {
		t.Fatal("normalized trim size not found")
	}
}

func TestLoadConfig_PartialFrontMatter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.yaml")
	yamlText := `trimSize: 5x8
fontSize: 12
paragraphStyle: nonfiction
frontMatter:
  copyright: false
`
	if err := os.WriteFile(path, []byte(yamlText), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg, _ = cfg.Normalize()
	if cfg.TrimSize != "5x8" || cfg.FontSize != 12 || cfg.ParagraphStyle != StyleNonfiction {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	fm := cfg.FrontMatter
	if fm.ShowCopyright() {
		t.Error("copyright should be disabled")
	}
	if !fm.ShowTOC() || !fm.ShowTitlePage() {
		t.Error("omitted toggles should default to true")
	}
	if fm.ShowDedication() {
		t.Error("omitted dedication should default to false")
	}
}

func TestFrontMatter_MergeConfigWins(t *testing.T) {
	fm := FrontMatter{Title: "From Doc", Author: "Doc Author", ISBN: "111"}
	got := fm.Merge(FormatConfig{Title: "From Config", FrontMatter: FrontMatterOptions{DedicationText: "For Ada"}})
	if got.Title != "From Config" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Author != "Doc Author" {
		t.Errorf("Author = %q, want inferred value kept", got.Author)
	}
	if got.Dedication != "For Ada" {
		t.Errorf("Dedication = %q", got.Dedication)
	}
}

func TestErrors_Taxonomy(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewParseError("docx", ErrCorruptPackage))
	if !IsParseError(err) {
		t.Fatal("IsParseError() = false")
	}
	if IsLayoutError(err) {
		t.Fatal("IsLayoutError() = true for parse error")
	}
	if !errors.Is(err, ErrCorruptPackage) {
		t.Fatal("errors.Is(ErrCorruptPackage) = false")
	}
	if !strings.Contains(err.Error(), ParseHint) {
		t.Fatalf("error %q missing hint", err)
	}

	lerr := &LayoutError{Op: "geometry", Err: ErrUnknownTrimSize}
	if !IsLayoutError(lerr) || !errors.Is(lerr, ErrUnknownTrimSize) {
		t.Fatal("layout error not recognized")
	}
}
