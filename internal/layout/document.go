package layout

import (
	"bytes"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	runningHeadSize = 9.0
	folioSize       = 10.0
	hairline        = 0.3
)

// document is the PDF being written.
type document struct {
	pdf   *gofpdf.Fpdf
	tr    func(string) string
	geo   Geometry
	m     Measurer
	font  Font
	pages int
}

func newDocument(geo Geometry, m Measurer, fm manuscript.FrontMatter, created time.Time) *document {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: geo.PageWidth, Ht: geo.PageHeight},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(fm.Title, true)
	pdf.SetAuthor(fm.Author, true)
	pdf.SetCreator("kdpforge", false)
	pdf.SetCreationDate(created)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetDrawColor(0, 0, 0)
	return &document{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
		geo: geo,
		m:   m,
	}
}

func (d *document) addPage() {
	d.pdf.AddPage()
	d.pages++
	d.font = Font{}
}

// left is the column's left edge on the current page.
func (d *document) left() float64 { return d.geo.ColumnLeft(d.pages) }

func (d *document) setFont(f Font) {
	if f != d.font {
		d.pdf.SetFont(f.Family, f.Style(), f.Size)
		d.font = f
	}
}

// text draws s with its baseline at y, x measured from the column edge.
func (d *document) text(x, y float64, f Font, s string) {
	d.setFont(f)
	d.pdf.Text(d.left()+x, y, d.tr(s))
}

// centered draws s centered in the column.
func (d *document) centered(y float64, f Font, s string) {
	d.text((d.geo.ColumnWidth-d.m.Width(f, s))/2, y, f, s)
}

func (d *document) rule(x1, x2, y, width float64) {
	d.pdf.SetLineWidth(width)
	d.pdf.Line(d.left()+x1, y, d.left()+x2, y)
}

func (d *document) output() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// pdfSink draws the body flow into the document, adding running heads
// and folios to every page that is not a section opener.
type pdfSink struct {
	doc        *document
	head       Font
	folio      Font
	title      string
	author     string
	registered map[string]bool
}

func newPDFSink(doc *document, ty typography, fm manuscript.FrontMatter) *pdfSink {
	return &pdfSink{
		doc:        doc,
		head:       ty.body.With(false, true).Sized(runningHeadSize),
		folio:      ty.body.With(false, false).Sized(folioSize),
		title:      fm.Title,
		author:     fm.Author,
		registered: make(map[string]bool),
	}
}

func (s *pdfSink) page(c Cursor) {
	s.doc.addPage()
	if c.Opener {
		return
	}
	geo := s.doc.geo

	head := s.author
	if s.doc.pages%2 == 1 {
		head = s.title
	}
	if head != "" {
		s.doc.centered(geo.HeaderBaseline(), s.head, head)
	}
	s.doc.rule(0, geo.ColumnWidth, geo.HeaderBaseline()+4, hairline)
	s.doc.centered(geo.FooterBaseline(), s.folio, strconv.Itoa(c.Labels))
}

func (s *pdfSink) text(x, baseline float64, f Font, str string) {
	s.doc.text(x, baseline, f, str)
}

func (s *pdfSink) rule(x1, x2, y float64) {
	s.doc.rule(x1, x2, y, 0.5)
}

func (s *pdfSink) image(img *preparedImage, x, y, w, h float64) {
	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	if !s.registered[img.name] {
		s.doc.pdf.RegisterImageOptionsReader(img.name, opts, bytes.NewReader(img.data))
		s.registered[img.name] = true
	}
	s.doc.pdf.ImageOptions(img.name, s.doc.left()+x, y, w, h, false, opts, 0, "")
}
