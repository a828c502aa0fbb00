package layout

import (
	"fmt"
	"math"
	"regexp"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	lineHeightFactor = 1.2
	// baselineRatio places the baseline within a line box.
	baselineRatio = 0.8

	fictionIndent = 18.0
	nonfictionGap = 10.0

	openerLabelSize = 9.0
	openerTitleSize = 20.0
	openerRuleWidth = 72.0
	openerAfter     = 36.0

	imageMaxColumnFraction = 0.6
	imageSpacing           = 12.0

	epsilon = 1e-6
)

// subheading is the vertical rhythm of an inline heading.
type subheading struct {
	lead, size, trail float64
	bold, italic      bool
}

var subheadings = map[int]subheading{
	2: {lead: 24, size: 13, trail: 12},
	3: {lead: 18, size: 12, trail: 8, bold: true, italic: true},
}

// typography is the resolved type setting of one generation call.
type typography struct {
	body    Font
	heading Font
	leading float64
	indent  float64
	gap     float64
}

// TocEntry is a heading listed in the table of contents.
type TocEntry struct {
	Title string
	Level int
	// PageNum is the printed page number the heading starts on. A heading
	// on a section opener carries the number of the next numbered page.
	PageNum int
	// BodyPage is the 1-based body page the heading is drawn on.
	BodyPage int
}

// Cursor is the position of the body flow. Each step takes a cursor and
// returns the advanced one.
type Cursor struct {
	// Page is the 1-based body page, zero before the first page.
	Page int
	// Y is the top of the next line.
	Y float64
	// Labels counts printed page numbers so far, including the current page.
	Labels int
	// Opener is set on a section opener page.
	Opener bool
}

// Number returns the page number a heading placed at c is listed under.
func (c Cursor) Number() int {
	if c.Opener || c.Page == 0 {
		return c.Labels + 1
	}
	return c.Labels
}

// sink receives the drawing calls of the body flow. x is measured from the
// left edge of the text column.
type sink interface {
	page(c Cursor)
	text(x, baseline float64, f Font, s string)
	rule(x1, x2, y float64)
	image(img *preparedImage, x, y, w, h float64)
}

// discardSink drops everything; the simulation pass runs against it.
type discardSink struct{}

func (discardSink) page(Cursor)                                              {}
func (discardSink) text(float64, float64, Font, string)                      {}
func (discardSink) rule(float64, float64, float64)                           {}
func (discardSink) image(*preparedImage, float64, float64, float64, float64) {}

// flow lays out the body. The same flow runs twice: once against a
// discardSink to learn where headings land, then against the PDF.
type flow struct {
	geo    Geometry
	ty     typography
	m      Measurer
	out    sink
	images [][]*preparedImage

	entries  []TocEntry
	sections int
}

func (f *flow) run(chapters []manuscript.Chapter) Cursor {
	var c Cursor
	for i, ch := range chapters {
		c = f.heading(c, ch)
		for j, p := range ch.Paragraphs {
			c = f.paragraph(c, p, j == 0)
		}
		if i < len(f.images) {
			for _, img := range f.images[i] {
				c = f.image(c, img)
			}
		}
	}
	return c
}

func (f *flow) newPage(c Cursor, opener bool) Cursor {
	c.Page++
	c.Opener = opener
	if !opener {
		c.Labels++
	}
	c.Y = f.geo.ColumnTop()
	f.out.page(c)
	return c
}

func (f *flow) atTop(c Cursor) bool {
	return c.Page > 0 && c.Y <= f.geo.ColumnTop()+epsilon
}

func (f *flow) record(c Cursor, ch manuscript.Chapter) {
	level := max(ch.Level, 1)
	if level > 2 {
		return
	}
	f.entries = append(f.entries, TocEntry{
		Title:    ch.Title,
		Level:    level,
		PageNum:  c.Number(),
		BodyPage: c.Page,
	})
}

func (f *flow) heading(c Cursor, ch manuscript.Chapter) Cursor {
	if ch.Level <= 1 {
		return f.opener(c, ch)
	}
	sub := subheadings[min(ch.Level, 3)]
	font := f.ty.heading.With(sub.bold, sub.italic).Sized(sub.size)
	lh := sub.size * lineHeightFactor
	lines := wrap(f.m, font, ch.Title, f.geo.ColumnWidth, 0)

	lead := sub.lead
	if c.Page == 0 || f.atTop(c) {
		lead = 0
	}
	if c.Page == 0 || !fits(c.Y, headingBlock(lead, lh, len(lines), sub.trail), f.geo.ColumnBottom()) {
		c = f.newPage(c, false)
		lead = 0
	}

	f.record(c, ch)
	y := c.Y + lead
	for _, line := range lines {
		f.out.text(0, y+baselineRatio*lh, font, line)
		y += lh
	}
	c.Y = y + sub.trail
	return c
}

var sectionTitleRe = regexp.MustCompile(`(?i)\bsection\b`)

// openerLabel is the small label above a section opener's title.
func openerLabel(title string, n int) string {
	if sectionTitleRe.MatchString(title) {
		return fmt.Sprintf("SECTION %d", n)
	}
	return fmt.Sprintf("CHAPTER %d", n)
}

// opener starts a level 1 heading on a fresh page without running head
// or page number.
func (f *flow) opener(c Cursor, ch manuscript.Chapter) Cursor {
	c = f.newPage(c, true)
	f.sections++
	f.record(c, ch)

	width := f.geo.ColumnWidth
	y := f.geo.TrimY(1.0 / 3)

	label := f.ty.heading.With(false, false).Sized(openerLabelSize)
	lh := openerLabelSize * lineHeightFactor
	f.centered(label, openerLabel(ch.Title, f.sections), y+baselineRatio*lh, width)
	y += lh + 6

	f.out.rule((width-openerRuleWidth)/2, (width+openerRuleWidth)/2, y)
	y += 18

	title := f.ty.heading.With(true, false).Sized(openerTitleSize)
	lh = openerTitleSize * lineHeightFactor
	for _, line := range wrap(f.m, title, ch.Title, width, 0) {
		f.centered(title, line, y+baselineRatio*lh, width)
		y += lh
	}
	c.Y = y + openerAfter
	return c
}

func (f *flow) centered(font Font, s string, baseline, width float64) {
	f.out.text((width-f.m.Width(font, s))/2, baseline, font, s)
}

// paragraph sets one justified paragraph. afterHeading suppresses the
// first-line indent and the block gap.
func (f *flow) paragraph(c Cursor, p manuscript.Paragraph, afterHeading bool) Cursor {
	font := f.ty.body.With(p.Bold, p.Italic)
	font.Underline = p.Underline
	indent := f.ty.indent
	if afterHeading {
		indent = 0
	}
	width := f.geo.ColumnWidth
	lines := wrap(f.m, font, p.Text, width, indent)
	if len(lines) == 0 {
		return c
	}
	if c.Page == 0 {
		c = f.newPage(c, false)
	}
	if f.ty.gap > 0 && !afterHeading && !f.atTop(c) {
		c.Y += f.ty.gap
	}

	lh := f.ty.leading
	for i := 0; i < len(lines); {
		n := linesThatFit(len(lines)-i, linesLeft(c.Y, lh, f.geo.ColumnBottom()), f.atTop(c))
		if n == 0 {
			c = f.newPage(c, false)
			continue
		}
		for end := i + n; i < end; i++ {
			x, w := 0.0, width
			if i == 0 {
				x, w = indent, width-indent
			}
			for _, word := range justify(f.m, font, lines[i], w, i == len(lines)-1) {
				f.out.text(x+word.X, c.Y+baselineRatio*lh, font, word.Text)
			}
			c.Y += lh
		}
	}
	return c
}

func (f *flow) image(c Cursor, img *preparedImage) Cursor {
	w, h := fitImage(img.width, img.height, f.geo.ColumnWidth, imageMaxColumnFraction*f.geo.ColumnHeight())
	if w <= 0 || h <= 0 {
		return c
	}
	if c.Page == 0 {
		c = f.newPage(c, false)
	}
	lead := imageSpacing
	if f.atTop(c) {
		lead = 0
	}
	if !fits(c.Y, lead+h, f.geo.ColumnBottom()) {
		c = f.newPage(c, false)
		lead = 0
	}
	f.out.image(img, (f.geo.ColumnWidth-w)/2, c.Y+lead, w, h)
	c.Y += lead + h + imageSpacing
	return c
}

// headingBlock is the vertical space an inline heading reserves.
func headingBlock(lead, lineHeight float64, lines int, trail float64) float64 {
	return lead + lineHeight*float64(lines) + trail
}

func fits(y, height, bottom float64) bool {
	return y+height <= bottom+epsilon
}

// linesLeft is the number of whole lines between y and bottom.
func linesLeft(y, lineHeight, bottom float64) int {
	if lineHeight <= 0 {
		return 0
	}
	return max(0, int(math.Floor((bottom-y)/lineHeight+epsilon)))
}

// linesThatFit decides how many of the n remaining lines of a paragraph
// go on the current page when room lines are left. A paragraph does not
// leave its last line alone at the top of the next page, and does not
// start with a single line at the bottom of a page. A fresh page always
// takes at least one line.
func linesThatFit(n, room int, topOfPage bool) int {
	if room >= n {
		return n
	}
	if room < 1 {
		if topOfPage {
			return 1
		}
		return 0
	}
	take := room
	if n-take == 1 && take > 1 {
		take--
	}
	if take == 1 && n > 1 && !topOfPage {
		take = 0
	}
	return take
}

// fitImage scales a pixel size to the column width, then down to maxHeight,
// keeping the aspect ratio.
func fitImage(px, py int, maxWidth, maxHeight float64) (w, h float64) {
	if px <= 0 || py <= 0 {
		return 0, 0
	}
	w = maxWidth
	h = w * float64(py) / float64(px)
	if h > maxHeight {
		h = maxHeight
		w = h * float64(px) / float64(py)
	}
	return w, h
}
