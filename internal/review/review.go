// Package review writes a manuscript as an editable Word document for
// proofreading. Unlike the print interior it has no gutter, running heads
// or table of contents: one page size, uniform margins, and heading
// styles that Word and the manuscript parser both recognize.
package review

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/yuanying/kdpforge/internal/layout"
	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic = "http://schemas.openxmlformats.org/drawingml/2006/picture"
	nsRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	relDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relCore     = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relStyles   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	relFooter   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer"
	relImage    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	twipsPerInch = 1440
	emuPerInch   = 914400
	emuPerPixel  = 9525 // at 96 dpi

	marginInches = 1.0
	// fallbackTrim is used when the config names no known trim.
	fallbackTrim = "8.5x11"
)

// Options controls review document generation.
type Options struct {
	// Modified stamps the core properties. Defaults to now.
	Modified time.Time
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Modified.IsZero() {
		o.Modified = time.Now()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// wordFonts maps the print font families onto fonts every Word install has.
var wordFonts = map[string]string{
	layout.FamilySerif: "Times New Roman",
	layout.FamilySans:  "Arial",
	layout.FamilyMono:  "Courier New",
}

// wordFont keeps unknown names as given; Word substitutes what it lacks.
func wordFont(name string) string {
	family, ok := layout.ResolveFamily(name)
	if !ok && name != "" {
		return name
	}
	return wordFonts[family]
}

type media struct {
	relID string
	name  string
	data  []byte
}

type writer struct {
	opts     Options
	cfg      manuscript.FormatConfig
	trim     manuscript.TrimSize
	media    []media
	drawings int
}

// Write renders content as a DOCX package to w. cfg supplies the page
// size, type and front matter overrides.
func Write(w io.Writer, content *manuscript.Content, cfg manuscript.FormatConfig, opts Options) error {
	opts.defaults()
	trim, ok := manuscript.LookupTrimSize(cfg.TrimSize)
	if !ok {
		trim, _ = manuscript.LookupTrimSize(fallbackTrim)
	}
	fm := content.FrontMatter.Merge(cfg)
	rw := &writer{opts: opts, cfg: cfg, trim: trim}

	document := rw.document(fm, content.Chapters)
	parts := []struct {
		name string
		doc  *etree.Document
	}{
		{"[Content_Types].xml", rw.contentTypes()},
		{"_rels/.rels", packageRels()},
		{"docProps/core.xml", rw.coreProperties(fm)},
		{"word/document.xml", document},
		{"word/styles.xml", rw.styles()},
		{"word/footer1.xml", footer()},
		{"word/_rels/document.xml.rels", rw.documentRels()},
	}

	zw := zip.NewWriter(w)
	for _, p := range parts {
		if err := writeXMLToZip(zw, p.name, p.doc); err != nil {
			return fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	for _, m := range rw.media {
		if err := writeDataToZip(zw, "word/media/"+m.name, m.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", m.name, err)
		}
	}
	opts.Logger.Debug("wrote review document", "chapters", len(content.Chapters), "images", len(rw.media))
	return zw.Close()
}

func newXML() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	return doc
}

// val creates a child element carrying a single w:val attribute.
func val(parent *etree.Element, tag, v string) *etree.Element {
	el := parent.CreateElement(tag)
	el.CreateAttr("w:val", v)
	return el
}

func twips(inches float64) string { return strconv.Itoa(int(inches * twipsPerInch)) }

func (rw *writer) document(fm manuscript.FrontMatter, chapters []manuscript.Chapter) *etree.Document {
	doc := newXML()
	root := doc.CreateElement("w:document")
	root.CreateAttr("xmlns:w", nsW)
	root.CreateAttr("xmlns:r", nsR)
	root.CreateAttr("xmlns:wp", nsWP)
	root.CreateAttr("xmlns:a", nsA)
	root.CreateAttr("xmlns:pic", nsPic)
	body := root.CreateElement("w:body")

	if fm.Title != "" {
		paragraph(body, "Title", manuscript.Paragraph{Text: fm.Title})
	}
	if fm.Author != "" {
		paragraph(body, "Subtitle", manuscript.Paragraph{Text: "by " + fm.Author})
	}

	for _, ch := range chapters {
		level := min(max(ch.Level, 1), 3)
		paragraph(body, "Heading"+strconv.Itoa(level), manuscript.Paragraph{Text: ch.Title})
		for j, p := range ch.Paragraphs {
			style := "BodyText"
			if j == 0 {
				style = "BodyTextFirst"
			}
			paragraph(body, style, p)
		}
		for _, img := range ch.Images {
			rw.image(body, img)
		}
	}

	sect := body.CreateElement("w:sectPr")
	ref := sect.CreateElement("w:footerReference")
	ref.CreateAttr("w:type", "default")
	ref.CreateAttr("r:id", "rIdFooter")
	size := sect.CreateElement("w:pgSz")
	size.CreateAttr("w:w", twips(rw.trim.Width))
	size.CreateAttr("w:h", twips(rw.trim.Height))
	mar := sect.CreateElement("w:pgMar")
	for _, side := range []string{"top", "right", "bottom", "left"} {
		mar.CreateAttr("w:"+side, twips(marginInches))
	}
	mar.CreateAttr("w:header", twips(marginInches/2))
	mar.CreateAttr("w:footer", twips(marginInches/2))
	mar.CreateAttr("w:gutter", "0")
	return doc
}

// paragraph writes p as a single run in the given paragraph style.
func paragraph(body *etree.Element, style string, p manuscript.Paragraph) {
	el := body.CreateElement("w:p")
	val(el.CreateElement("w:pPr"), "w:pStyle", style)
	r := el.CreateElement("w:r")
	if p.Bold || p.Italic || p.Underline {
		rpr := r.CreateElement("w:rPr")
		if p.Bold {
			rpr.CreateElement("w:b")
		}
		if p.Italic {
			rpr.CreateElement("w:i")
		}
		if p.Underline {
			val(rpr, "w:u", "single")
		}
	}
	t := r.CreateElement("w:t")
	t.CreateAttr("xml:space", "preserve")
	t.SetText(p.Text)
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	}
	return ""
}

// image embeds img as an inline picture scaled to the text width.
func (rw *writer) image(body *etree.Element, img manuscript.Image) {
	ext := imageExtension(img.ContentType)
	if ext == "" {
		rw.opts.Logger.Debug("skipping image with unsupported type", "content_type", img.ContentType)
		return
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		rw.opts.Logger.Debug("skipping undecodable image", "error", err)
		return
	}

	rw.drawings++
	n := rw.drawings
	m := media{relID: "rIdImg" + strconv.Itoa(n), name: fmt.Sprintf("image%03d%s", n, ext), data: img.Data}
	rw.media = append(rw.media, m)

	cx := cfg.Width * emuPerPixel
	cy := cfg.Height * emuPerPixel
	if maxCX := int((rw.trim.Width - 2*marginInches) * emuPerInch); cx > maxCX {
		cy = int(float64(cy) * float64(maxCX) / float64(cx))
		cx = maxCX
	}

	p := body.CreateElement("w:p")
	val(p.CreateElement("w:pPr"), "w:pStyle", "Figure")
	inline := p.CreateElement("w:r").CreateElement("w:drawing").CreateElement("wp:inline")
	extent := inline.CreateElement("wp:extent")
	extent.CreateAttr("cx", strconv.Itoa(cx))
	extent.CreateAttr("cy", strconv.Itoa(cy))
	docPr := inline.CreateElement("wp:docPr")
	docPr.CreateAttr("id", strconv.Itoa(n))
	docPr.CreateAttr("name", "Picture "+strconv.Itoa(n))
	docPr.CreateAttr("descr", img.Alt)

	data := inline.CreateElement("a:graphic").CreateElement("a:graphicData")
	data.CreateAttr("uri", nsPic)
	pic := data.CreateElement("pic:pic")
	nv := pic.CreateElement("pic:nvPicPr")
	cNvPr := nv.CreateElement("pic:cNvPr")
	cNvPr.CreateAttr("id", strconv.Itoa(n))
	cNvPr.CreateAttr("name", m.name)
	nv.CreateElement("pic:cNvPicPr")
	fill := pic.CreateElement("pic:blipFill")
	fill.CreateElement("a:blip").CreateAttr("r:embed", m.relID)
	fill.CreateElement("a:stretch").CreateElement("a:fillRect")
	spPr := pic.CreateElement("pic:spPr")
	xfrm := spPr.CreateElement("a:xfrm")
	off := xfrm.CreateElement("a:off")
	off.CreateAttr("x", "0")
	off.CreateAttr("y", "0")
	ext2 := xfrm.CreateElement("a:ext")
	ext2.CreateAttr("cx", strconv.Itoa(cx))
	ext2.CreateAttr("cy", strconv.Itoa(cy))
	geom := spPr.CreateElement("a:prstGeom")
	geom.CreateAttr("prst", "rect")
	geom.CreateElement("a:avLst")
}

func (rw *writer) styles() *etree.Document {
	doc := newXML()
	root := doc.CreateElement("w:styles")
	root.CreateAttr("xmlns:w", nsW)

	size := rw.cfg.FontSize
	if size <= 0 {
		size = manuscript.DefaultFontSize
	}
	spacing := rw.cfg.LineSpacing
	if spacing <= 0 {
		spacing = manuscript.DefaultLineSpacing
	}
	bodyFont := wordFont(rw.cfg.BodyFont)
	headingFont := wordFont(rw.cfg.HeadingFont)
	if rw.cfg.HeadingFont == "" {
		headingFont = bodyFont
	}

	defaults := root.CreateElement("w:docDefaults")
	rpr := defaults.CreateElement("w:rPrDefault").CreateElement("w:rPr")
	fonts := rpr.CreateElement("w:rFonts")
	fonts.CreateAttr("w:ascii", bodyFont)
	fonts.CreateAttr("w:hAnsi", bodyFont)
	fonts.CreateAttr("w:cs", bodyFont)
	val(rpr, "w:sz", strconv.Itoa(int(size*2)))
	ppr := defaults.CreateElement("w:pPrDefault").CreateElement("w:pPr")
	sp := ppr.CreateElement("w:spacing")
	sp.CreateAttr("w:after", "0")
	sp.CreateAttr("w:line", strconv.Itoa(int(spacing*240)))
	sp.CreateAttr("w:lineRule", "auto")

	type styleDef struct {
		id, name     string
		bold, italic bool
		size         float64
		center       bool
		pageBreak    bool
		before       int
		after        int
		indent       int
		font         string
	}
	indent, after := 360, 0
	if rw.cfg.ParagraphStyle == manuscript.StyleNonfiction {
		indent, after = 0, 200
	}
	defs := []styleDef{
		{id: "Normal", name: "Normal"},
		{id: "Title", name: "Title", bold: true, size: 28, center: true, before: 2880, after: 480, font: headingFont},
		{id: "Subtitle", name: "Subtitle", italic: true, size: 14, center: true, font: headingFont},
		{id: "Heading1", name: "heading 1", bold: true, size: 20, center: true, pageBreak: true, before: 1440, after: 480, font: headingFont},
		{id: "Heading2", name: "heading 2", bold: true, size: 13, before: 480, after: 240, font: headingFont},
		{id: "Heading3", name: "heading 3", bold: true, italic: true, size: 12, before: 360, after: 160, font: headingFont},
		{id: "BodyText", name: "Body Text", indent: indent, after: after},
		{id: "BodyTextFirst", name: "Body Text First Indent", after: after},
		{id: "Figure", name: "Figure", center: true, before: 240, after: 240},
	}
	for _, d := range defs {
		st := root.CreateElement("w:style")
		st.CreateAttr("w:type", "paragraph")
		st.CreateAttr("w:styleId", d.id)
		if d.id == "Normal" {
			st.CreateAttr("w:default", "1")
		}
		val(st, "w:name", d.name)
		if d.id != "Normal" {
			val(st, "w:basedOn", "Normal")
			val(st, "w:qFormat", "1")
		}

		ppr := st.CreateElement("w:pPr")
		if d.pageBreak {
			ppr.CreateElement("w:pageBreakBefore")
		}
		if d.before > 0 || d.after > 0 {
			s := ppr.CreateElement("w:spacing")
			s.CreateAttr("w:before", strconv.Itoa(d.before))
			s.CreateAttr("w:after", strconv.Itoa(d.after))
		}
		if d.indent > 0 {
			ppr.CreateElement("w:ind").CreateAttr("w:firstLine", strconv.Itoa(d.indent))
		}
		if d.center {
			val(ppr, "w:jc", "center")
		} else if d.id != "Normal" {
			val(ppr, "w:jc", "both")
		}

		rpr := st.CreateElement("w:rPr")
		if d.font != "" && d.font != bodyFont {
			f := rpr.CreateElement("w:rFonts")
			f.CreateAttr("w:ascii", d.font)
			f.CreateAttr("w:hAnsi", d.font)
		}
		if d.bold {
			rpr.CreateElement("w:b")
		}
		if d.italic {
			rpr.CreateElement("w:i")
		}
		if d.size > 0 {
			val(rpr, "w:sz", strconv.Itoa(int(d.size*2)))
		}
	}
	return doc
}

// footer centers a PAGE field.
func footer() *etree.Document {
	doc := newXML()
	root := doc.CreateElement("w:ftr")
	root.CreateAttr("xmlns:w", nsW)
	p := root.CreateElement("w:p")
	val(p.CreateElement("w:pPr"), "w:jc", "center")
	field := p.CreateElement("w:fldSimple")
	field.CreateAttr("w:instr", " PAGE ")
	field.CreateElement("w:r").CreateElement("w:t").SetText("1")
	return doc
}

func (rw *writer) coreProperties(fm manuscript.FrontMatter) *etree.Document {
	doc := newXML()
	root := doc.CreateElement("cp:coreProperties")
	root.CreateAttr("xmlns:cp", "http://schemas.openxmlformats.org/package/2006/metadata/core-properties")
	root.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	root.CreateAttr("xmlns:dcterms", "http://purl.org/dc/terms/")
	root.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")
	if fm.Title != "" {
		root.CreateElement("dc:title").SetText(fm.Title)
	}
	if fm.Author != "" {
		root.CreateElement("dc:creator").SetText(fm.Author)
	}
	if fm.ISBN != "" {
		root.CreateElement("dc:identifier").SetText("urn:isbn:" + fm.ISBN)
	}
	stamp := rw.opts.Modified.UTC().Format("2006-01-02T15:04:05Z")
	for _, tag := range []string{"dcterms:created", "dcterms:modified"} {
		el := root.CreateElement(tag)
		el.CreateAttr("xsi:type", "dcterms:W3CDTF")
		el.SetText(stamp)
	}
	return doc
}

func (rw *writer) contentTypes() *etree.Document {
	doc := newXML()
	root := doc.CreateElement("Types")
	root.CreateAttr("xmlns", "http://schemas.openxmlformats.org/package/2006/content-types")
	def := func(ext, ct string) {
		el := root.CreateElement("Default")
		el.CreateAttr("Extension", ext)
		el.CreateAttr("ContentType", ct)
	}
	def("rels", "application/vnd.openxmlformats-package.relationships+xml")
	def("xml", "application/xml")
	def("png", "image/png")
	def("jpg", "image/jpeg")
	def("gif", "image/gif")

	override := func(part, ct string) {
		el := root.CreateElement("Override")
		el.CreateAttr("PartName", part)
		el.CreateAttr("ContentType", ct)
	}
	override("/word/document.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml")
	override("/word/styles.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml")
	override("/word/footer1.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml")
	override("/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml")
	return doc
}

func relationships() (*etree.Document, func(id, typ, target string)) {
	doc := newXML()
	root := doc.CreateElement("Relationships")
	root.CreateAttr("xmlns", nsRel)
	return doc, func(id, typ, target string) {
		el := root.CreateElement("Relationship")
		el.CreateAttr("Id", id)
		el.CreateAttr("Type", typ)
		el.CreateAttr("Target", target)
	}
}

func packageRels() *etree.Document {
	doc, add := relationships()
	add("rId1", relDocument, "word/document.xml")
	add("rId2", relCore, "docProps/core.xml")
	return doc
}

func (rw *writer) documentRels() *etree.Document {
	doc, add := relationships()
	add("rIdStyles", relStyles, "styles.xml")
	add("rIdFooter", relFooter, "footer1.xml")
	for _, m := range rw.media {
		add(m.relID, relImage, "media/"+m.name)
	}
	return doc
}

func writeXMLToZip(zw *zip.Writer, name string, doc *etree.Document) error {
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return err
	}
	return writeDataToZip(zw, name, buf.Bytes())
}

func writeDataToZip(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
