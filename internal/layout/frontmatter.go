package layout

import (
	"math"
	"strconv"
	"strings"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	halfTitleSize   = 18.0
	titleMaxSize    = 28.0
	titleMinSize    = 18.0
	titleMaxLines   = 3
	bylineSize      = 11.0
	bylineGap       = 32.0
	authorSize      = 14.0
	authorGap       = 12.0
	copyrightSize   = 9.0
	copyrightLead   = 1.8
	contentsSize    = 16.0
	tocLevel1Size   = 11.0
	tocLevel2Size   = 10.0
	tocLevel2Indent = 18.0
	tocLeaderGap    = 4.0
	dedicationSize  = 12.0
)

// frontMatter writes the enabled front matter pages in order: half-title,
// blank verso, title, copyright, contents and dedication.
func (d *document) frontMatter(fm manuscript.FrontMatter, opts manuscript.FrontMatterOptions, toc []TocEntry, ty typography, year int) {
	title := fm.Title
	if title == "" {
		title = "Untitled"
	}
	if opts.ShowTitlePage() {
		d.halfTitle(title, ty)
		d.addPage()
		d.titlePage(title, fm.Author, ty)
	}
	if opts.ShowCopyright() {
		d.copyrightPage(fm, ty, year)
	}
	if opts.ShowTOC() && len(toc) > 0 {
		d.contents(toc, ty)
	}
	if opts.ShowDedication() && strings.TrimSpace(fm.Dedication) != "" {
		d.dedication(fm.Dedication, ty)
	}
}

// block draws wrapped, centered lines starting at top and returns the y
// below the last line.
func (d *document) block(top float64, f Font, lineHeight float64, text string) float64 {
	y := top
	for _, line := range wrap(d.m, f, text, d.geo.ColumnWidth, 0) {
		d.centered(y+baselineRatio*lineHeight, f, line)
		y += lineHeight
	}
	return y
}

func (d *document) halfTitle(title string, ty typography) {
	d.addPage()
	f := ty.heading.With(false, false).Sized(halfTitleSize)
	d.block(d.geo.TrimY(0.4), f, halfTitleSize*lineHeightFactor, title)
}

// titleSize shrinks the title from titleMaxSize until it fits on
// titleMaxLines lines, stopping at titleMinSize.
func titleSize(m Measurer, f Font, title string, width float64) float64 {
	size := titleMaxSize
	for size > titleMinSize && len(wrap(m, f.Sized(size), title, width, 0)) > titleMaxLines {
		size--
	}
	return size
}

func (d *document) titlePage(title, author string, ty typography) {
	d.addPage()
	f := ty.heading.With(true, false)
	f = f.Sized(titleSize(d.m, f, title, d.geo.ColumnWidth))
	y := d.block(d.geo.TrimY(0.3), f, f.Size*lineHeightFactor, title)
	if author == "" {
		return
	}

	by := ty.body.With(false, true).Sized(bylineSize)
	y = d.block(y+bylineGap, by, bylineSize*lineHeightFactor, "By")
	d.block(y+authorGap, ty.body.With(false, false).Sized(authorSize), authorSize*lineHeightFactor, author)
}

// CopyrightLines returns the lines of the copyright page.
func CopyrightLines(fm manuscript.FrontMatter, year int) []string {
	lines := []string{
		fm.CopyrightLine(year),
		"Printed in the United States of America.",
		"First Edition.",
	}
	if fm.ISBN != "" {
		lines = append(lines, "ISBN: "+fm.ISBN)
	}
	return lines
}

func (d *document) copyrightPage(fm manuscript.FrontMatter, ty typography, year int) {
	d.addPage()
	f := ty.body.With(false, false).Sized(copyrightSize)
	lh := copyrightSize * copyrightLead
	y := d.geo.TrimY(0.55)
	for _, line := range CopyrightLines(fm, year) {
		y = d.block(y, f, lh, line)
	}
}

// contents writes the table of contents, continuing onto as many pages as
// the entries need.
func (d *document) contents(toc []TocEntry, ty typography) {
	d.addPage()
	heading := ty.heading.With(true, false).Sized(contentsSize)
	y := d.block(d.geo.ColumnTop(), heading, contentsSize*lineHeightFactor, "Contents") + 24

	width := d.geo.ColumnWidth
	bottom := d.geo.ColumnBottom()
	for _, e := range toc {
		f, indent, after := ty.body.With(true, false).Sized(tocLevel1Size), 0.0, 6.0
		if e.Level > 1 {
			f, indent, after = ty.body.With(false, false).Sized(tocLevel2Size), tocLevel2Indent, 2.0
		}
		lh := f.Size * lineHeightFactor
		num := strconv.Itoa(e.PageNum)
		numW := d.m.Width(f, num)
		lines := wrap(d.m, f, e.Title, width-indent-numW-3*tocLeaderGap, 0)
		if len(lines) == 0 {
			lines = []string{""}
		}

		if y+float64(len(lines))*lh > bottom {
			d.addPage()
			y = d.geo.ColumnTop()
		}
		for i, line := range lines {
			baseline := y + baselineRatio*lh
			d.text(indent, baseline, f, line)
			if i == len(lines)-1 {
				from := indent + d.m.Width(f, line) + tocLeaderGap
				d.leaders(from, width-numW-tocLeaderGap, baseline, f)
				d.text(width-numW, baseline, f, num)
			}
			y += lh
		}
		y += after
	}
}

// leaders fills the space between from and to with dots, flush against to.
func (d *document) leaders(from, to, baseline float64, f Font) {
	dot := d.m.Width(f, ".")
	if dot <= 0 || to <= from {
		return
	}
	n := int(math.Floor((to - from) / dot))
	if n < 1 {
		return
	}
	d.text(to-float64(n)*dot, baseline, f, strings.Repeat(".", n))
}

func (d *document) dedication(text string, ty typography) {
	d.addPage()
	f := ty.body.With(false, true).Sized(dedicationSize)
	lh := dedicationSize * lineHeightFactor
	lines := wrap(d.m, f, text, d.geo.ColumnWidth, 0)
	top := d.geo.TrimY(0.5) - float64(len(lines))*lh/2
	d.block(top, f, lh, text)
}
