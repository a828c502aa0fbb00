package layout

import "github.com/yuanying/kdpforge/internal/manuscript"

// All geometry is in PDF points.
const (
	PointsPerInch = 72.0

	BleedInches          = 0.125
	OutsideMarginInches  = 0.75
	TopMarginInches      = 0.75
	BottomMarginInches   = 0.75
	HeaderBaselineInches = 0.4
)

// GutterInches returns the inside margin for a book of the given page
// count. Thicker books need more room at the spine.
func GutterInches(pages int) float64 {
	switch {
	case pages < 151:
		return 0.375
	case pages < 301:
		return 0.5
	case pages < 501:
		return 0.625
	default:
		return 0.75
	}
}

// Geometry is the page frame for one generation call.
type Geometry struct {
	// PageWidth and PageHeight include the bleed.
	PageWidth  float64
	PageHeight float64
	// Bleed is the extra paper on every edge, zero without bleed.
	Bleed float64

	Gutter  float64
	Outside float64
	Top     float64
	Bottom  float64

	ColumnWidth float64
}

// NewGeometry builds the page frame for a trim size.
func NewGeometry(trim manuscript.TrimSize, estimatedPages int, bleed bool) Geometry {
	g := Geometry{
		PageWidth:  trim.Width * PointsPerInch,
		PageHeight: trim.Height * PointsPerInch,
		Gutter:     GutterInches(estimatedPages) * PointsPerInch,
		Outside:    OutsideMarginInches * PointsPerInch,
		Top:        TopMarginInches * PointsPerInch,
		Bottom:     BottomMarginInches * PointsPerInch,
	}
	if bleed {
		g.Bleed = BleedInches * PointsPerInch
		g.PageWidth += 2 * g.Bleed
		g.PageHeight += 2 * g.Bleed
	}
	g.ColumnWidth = g.PageWidth - 2*g.Bleed - g.Gutter - g.Outside
	return g
}

// TrimHeight is the height of the finished page.
func (g Geometry) TrimHeight() float64 { return g.PageHeight - 2*g.Bleed }

// TrimY returns the page y coordinate at fraction of the trim height.
func (g Geometry) TrimY(fraction float64) float64 {
	return g.Bleed + fraction*g.TrimHeight()
}

// ColumnLeft returns the left edge of the text column on a physical page.
// Odd pages are rectos and bind on the left.
func (g Geometry) ColumnLeft(page int) float64 {
	if page%2 == 1 {
		return g.Bleed + g.Gutter
	}
	return g.Bleed + g.Outside
}

// ColumnTop is the y coordinate of the first body line.
func (g Geometry) ColumnTop() float64 { return g.Bleed + g.Top }

// ColumnBottom is the lowest y coordinate body text may reach.
func (g Geometry) ColumnBottom() float64 { return g.PageHeight - g.Bleed - g.Bottom }

// ColumnHeight is the vertical space available to body text.
func (g Geometry) ColumnHeight() float64 { return g.ColumnBottom() - g.ColumnTop() }

// HeaderBaseline is the running header's baseline.
func (g Geometry) HeaderBaseline() float64 { return g.Bleed + HeaderBaselineInches*PointsPerInch }

// FooterBaseline is the page number's baseline, mirroring the header.
func (g Geometry) FooterBaseline() float64 {
	return g.PageHeight - g.Bleed - HeaderBaselineInches*PointsPerInch
}
