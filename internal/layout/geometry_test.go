package layout

import (
	"math"
	"testing"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

func TestGutterInches(t *testing.T) {
	tests := []struct {
		pages int
		want  float64
	}{
		{0, 0.375},
		{24, 0.375},
		{150, 0.375},
		{151, 0.5},
		{300, 0.5},
		{301, 0.625},
		{500, 0.625},
		{501, 0.75},
		{828, 0.75},
		{5000, 0.75},
	}
	for _, tt := range tests {
		if got := GutterInches(tt.pages); got != tt.want {
			t.Errorf("GutterInches(%d) = %v, want %v", tt.pages, got, tt.want)
		}
	}
}

func TestGutterInches_Monotonic(t *testing.T) {
	var steps []int
	prev := GutterInches(0)
	for pages := 1; pages <= 1000; pages++ {
		got := GutterInches(pages)
		if got < prev {
			t.Fatalf("GutterInches(%d) = %v < GutterInches(%d) = %v", pages, got, pages-1, prev)
		}
		if got != prev {
			steps = append(steps, pages-1)
		}
		prev = got
	}
	want := []int{150, 300, 500}
	if len(steps) != len(want) {
		t.Fatalf("breakpoints = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("breakpoints = %v, want %v", steps, want)
		}
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewGeometry(t *testing.T) {
	trim, _ := manuscript.LookupTrimSize("6x9")

	g := NewGeometry(trim, 24, false)
	if !approx(g.PageWidth, 432) || !approx(g.PageHeight, 648) {
		t.Errorf("page = %vx%v, want 432x648", g.PageWidth, g.PageHeight)
	}
	if !approx(g.Gutter, 27) || !approx(g.Outside, 54) {
		t.Errorf("gutter = %v outside = %v", g.Gutter, g.Outside)
	}
	if !approx(g.ColumnWidth, 432-27-54) {
		t.Errorf("ColumnWidth = %v", g.ColumnWidth)
	}
	if !approx(g.ColumnTop(), 54) || !approx(g.ColumnBottom(), 594) {
		t.Errorf("column = %v..%v", g.ColumnTop(), g.ColumnBottom())
	}
	if !approx(g.HeaderBaseline(), 28.8) {
		t.Errorf("HeaderBaseline = %v", g.HeaderBaseline())
	}

	b := NewGeometry(trim, 400, true)
	if !approx(b.PageWidth, 432+18) || !approx(b.PageHeight, 648+18) {
		t.Errorf("bleed page = %vx%v, want 450x666", b.PageWidth, b.PageHeight)
	}
	if !approx(b.Gutter, 0.625*72) {
		t.Errorf("bleed gutter = %v", b.Gutter)
	}
	if !approx(b.ColumnWidth, 432-45-54) {
		t.Errorf("bleed ColumnWidth = %v, want trim-relative width", b.ColumnWidth)
	}
	if !approx(b.ColumnTop(), 9+54) || !approx(b.TrimY(0.5), 9+324) {
		t.Errorf("bleed offsets: top %v, middle %v", b.ColumnTop(), b.TrimY(0.5))
	}
}

func TestGeometry_ColumnLeft(t *testing.T) {
	trim, _ := manuscript.LookupTrimSize("6x9")
	g := NewGeometry(trim, 24, false)

	if got := g.ColumnLeft(1); !approx(got, g.Gutter) {
		t.Errorf("recto ColumnLeft = %v, want gutter %v", got, g.Gutter)
	}
	if got := g.ColumnLeft(2); !approx(got, g.Outside) {
		t.Errorf("verso ColumnLeft = %v, want outside %v", got, g.Outside)
	}
	for page := 1; page <= 4; page++ {
		right := g.PageWidth - g.ColumnLeft(page) - g.ColumnWidth
		want := g.Outside
		if page%2 == 0 {
			want = g.Gutter
		}
		if !approx(right, want) {
			t.Errorf("page %d right margin = %v, want %v", page, right, want)
		}
	}
}
