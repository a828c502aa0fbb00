package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	oebpsDir  = "OEBPS"
	xhtmlType = "application/xhtml+xml"
)

const stylesheet = `body { font-family: serif; line-height: 1.4; margin: 0 5%; }
h1 { text-align: center; margin: 3em 0 2em; page-break-before: always; }
h2 { margin: 2em 0 0.8em; }
h3 { font-style: italic; margin: 1.5em 0 0.6em; }
p { text-indent: 1.5em; margin: 0; text-align: justify; }
p.first, p.center { text-indent: 0; }
p.center { text-align: center; }
p.dedication { text-indent: 0; text-align: center; font-style: italic; margin-top: 30%; }
span.u { text-decoration: underline; }
div.image { text-align: center; margin: 1em 0; }
div.image img { max-width: 100%; }
.title { text-align: center; margin-top: 30%; }
.copyright { font-size: 0.8em; margin-top: 50%; }
.copyright p { text-indent: 0; }
`

// WriteOptions controls EPUB generation.
type WriteOptions struct {
	// Language is the dc:language value. Defaults to "en".
	Language string
	// Identifier is the unique identifier. Defaults to a random urn:uuid.
	Identifier string
	// Modified is the dcterms:modified timestamp. Defaults to now.
	Modified time.Time
	// Year printed on the copyright page. Defaults to Modified's year.
	Year   int
	Logger *slog.Logger
}

func (o *WriteOptions) defaults() {
	if o.Language == "" {
		o.Language = "en"
	}
	if o.Identifier == "" {
		o.Identifier = "urn:uuid:" + uuid.NewString()
	}
	if o.Modified.IsZero() {
		o.Modified = time.Now()
	}
	if o.Year == 0 {
		o.Year = o.Modified.Year()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type manifestEntry struct {
	id         string
	href       string // relative to OEBPS
	mediaType  string
	properties string
	data       []byte
	spine      bool
}

// Write renders content as an EPUB 3 package to w.
func Write(w io.Writer, content *manuscript.Content, opts WriteOptions) error {
	opts.defaults()
	fm := content.FrontMatter
	title := fm.Title
	if title == "" {
		title = "Untitled"
	}

	b := &bookBuilder{opts: opts, title: title}
	b.addPage("title", "text/title.xhtml", b.titlePage(fm))
	b.addPage("copyright", "text/copyright.xhtml", b.copyrightPage(fm))
	if fm.Dedication != "" {
		b.addPage("dedication", "text/dedication.xhtml", b.dedicationPage(fm.Dedication))
	}
	b.addChapters(content.Chapters)

	zw := zip.NewWriter(w)
	if err := writeMimetype(zw); err != nil {
		return fmt.Errorf("failed to write mimetype: %w", err)
	}
	if err := writeContainer(zw); err != nil {
		return fmt.Errorf("failed to write container.xml: %w", err)
	}
	if err := writeDataToZip(zw, path.Join(oebpsDir, "style.css"), []byte(stylesheet)); err != nil {
		return err
	}
	for _, e := range b.entries {
		if e.data == nil {
			continue
		}
		if err := writeDataToZip(zw, path.Join(oebpsDir, e.href), e.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.href, err)
		}
	}
	if err := writeXMLToZip(zw, path.Join(oebpsDir, "nav.xhtml"), b.navDocument()); err != nil {
		return err
	}
	ncx := &NCX{UID: opts.Identifier, DocTitle: title, NavPoints: b.nav}
	if err := writeXMLToZip(zw, path.Join(oebpsDir, "toc.ncx"), ncx.document()); err != nil {
		return err
	}
	if err := writeXMLToZip(zw, path.Join(oebpsDir, "content.opf"), b.packageDocument(fm)); err != nil {
		return err
	}
	return zw.Close()
}

type bookBuilder struct {
	opts    WriteOptions
	title   string
	entries []manifestEntry
	nav     []NavPoint
	images  int
}

func (b *bookBuilder) addPage(id, href string, doc *etree.Document) {
	b.entries = append(b.entries, manifestEntry{
		id:        id,
		href:      href,
		mediaType: xhtmlType,
		data:      render(doc),
		spine:     true,
	})
}

// addChapters writes one XHTML file per level-1 chapter. Level 2 and 3
// chapters continue the current file.
func (b *bookBuilder) addChapters(chapters []manuscript.Chapter) {
	var (
		doc  *etree.Document
		body *etree.Element
		href string
		file int
	)
	flush := func() {
		if doc != nil {
			b.addPage(fmt.Sprintf("ch%03d", file), href, doc)
		}
	}

	for i, ch := range chapters {
		if doc == nil || ch.Level <= 1 {
			flush()
			file++
			href = fmt.Sprintf("text/ch%03d.xhtml", file)
			doc, body = newXHTML(ch.Title)
		}

		anchor := "c" + strconv.Itoa(i+1)
		level := ch.Level
		if level < 1 || level > 3 {
			level = 1
		}
		h := body.CreateElement("h" + strconv.Itoa(level))
		h.CreateAttr("id", anchor)
		h.SetText(ch.Title)
		b.addNav(level, ch.Title, href+"#"+anchor)

		for j, p := range ch.Paragraphs {
			writeParagraph(body, p, j == 0)
		}
		for _, img := range ch.Images {
			b.addImage(body, img)
		}
	}
	flush()
}

// addNav records a navigation entry. Level 1 entries are top level, deeper
// entries nest under the latest level 1 entry.
func (b *bookBuilder) addNav(level int, label, src string) {
	np := NavPoint{Label: label, Src: src}
	if level == 1 || len(b.nav) == 0 {
		b.nav = append(b.nav, np)
		return
	}
	if level == 2 {
		last := &b.nav[len(b.nav)-1]
		last.Children = append(last.Children, np)
	}
}

func (b *bookBuilder) addImage(body *etree.Element, img manuscript.Image) {
	ext := imageExtension(img.ContentType)
	if ext == "" || len(img.Data) == 0 {
		b.opts.Logger.Debug("skipping image with unsupported type", "content_type", img.ContentType)
		return
	}
	b.images++
	href := fmt.Sprintf("images/img%03d%s", b.images, ext)
	b.entries = append(b.entries, manifestEntry{
		id:        fmt.Sprintf("img%03d", b.images),
		href:      href,
		mediaType: img.ContentType,
		data:      img.Data,
	})

	div := body.CreateElement("div")
	div.CreateAttr("class", "image")
	el := div.CreateElement("img")
	el.CreateAttr("src", "../"+href)
	el.CreateAttr("alt", img.Alt)
}

func writeParagraph(body *etree.Element, p manuscript.Paragraph, first bool) {
	el := body.CreateElement("p")
	if first {
		el.CreateAttr("class", "first")
	}
	inner := el
	if p.Bold {
		inner = inner.CreateElement("strong")
	}
	if p.Italic {
		inner = inner.CreateElement("em")
	}
	if p.Underline {
		inner = inner.CreateElement("span")
		inner.CreateAttr("class", "u")
	}
	inner.SetText(p.Text)
}

func (b *bookBuilder) titlePage(fm manuscript.FrontMatter) *etree.Document {
	doc, body := newXHTML(b.title)
	setBodyType(doc, body, "titlepage")
	div := body.CreateElement("div")
	div.CreateAttr("class", "title")
	div.CreateElement("h1").SetText(b.title)
	if fm.Author != "" {
		p := div.CreateElement("p")
		p.CreateAttr("class", "center")
		p.SetText(fm.Author)
	}
	return doc
}

func (b *bookBuilder) copyrightPage(fm manuscript.FrontMatter) *etree.Document {
	doc, body := newXHTML("Copyright")
	setBodyType(doc, body, "copyright-page")
	div := body.CreateElement("div")
	div.CreateAttr("class", "copyright")
	div.CreateElement("p").SetText(fm.CopyrightLine(b.opts.Year))
	div.CreateElement("p").SetText("All rights reserved.")
	if fm.ISBN != "" {
		div.CreateElement("p").SetText("ISBN: " + fm.ISBN)
	}
	return doc
}

func (b *bookBuilder) dedicationPage(text string) *etree.Document {
	doc, body := newXHTML("Dedication")
	setBodyType(doc, body, "dedication")
	p := body.CreateElement("p")
	p.CreateAttr("class", "dedication")
	p.SetText(text)
	return doc
}

func (b *bookBuilder) navDocument() *etree.Document {
	doc, body := newXHTML("Contents")
	html := doc.SelectElement("html")
	html.CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")
	doc.FindElement("//link").CreateAttr("href", "style.css")

	nav := body.CreateElement("nav")
	nav.CreateAttr("epub:type", "toc")
	nav.CreateAttr("id", "toc")
	nav.CreateElement("h1").SetText("Contents")

	var build func(parent *etree.Element, points []NavPoint)
	build = func(parent *etree.Element, points []NavPoint) {
		ol := parent.CreateElement("ol")
		for _, p := range points {
			li := ol.CreateElement("li")
			a := li.CreateElement("a")
			a.CreateAttr("href", p.Src)
			a.SetText(p.Label)
			if len(p.Children) > 0 {
				build(li, p.Children)
			}
		}
	}
	if len(b.nav) > 0 {
		build(nav, b.nav)
	} else {
		ol := nav.CreateElement("ol")
		a := ol.CreateElement("li").CreateElement("a")
		a.CreateAttr("href", "text/title.xhtml")
		a.SetText(b.title)
	}
	return doc
}

func (b *bookBuilder) packageDocument(fm manuscript.FrontMatter) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("xmlns", "http://www.idpf.org/2007/opf")
	pkg.CreateAttr("version", "3.0")
	pkg.CreateAttr("unique-identifier", "BookId")

	md := pkg.CreateElement("metadata")
	md.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	id := md.CreateElement("dc:identifier")
	id.CreateAttr("id", "BookId")
	id.SetText(b.opts.Identifier)
	md.CreateElement("dc:title").SetText(b.title)
	md.CreateElement("dc:language").SetText(b.opts.Language)
	if fm.Author != "" {
		c := md.CreateElement("dc:creator")
		c.CreateAttr("id", "creator")
		c.SetText(fm.Author)
		role := md.CreateElement("meta")
		role.CreateAttr("refines", "#creator")
		role.CreateAttr("property", "role")
		role.CreateAttr("scheme", "marc:relators")
		role.SetText("aut")
	}
	if fm.Copyright != "" {
		md.CreateElement("dc:rights").SetText(fm.Copyright)
	}
	if fm.ISBN != "" {
		isbn := md.CreateElement("dc:identifier")
		isbn.CreateAttr("id", "isbn")
		isbn.SetText("urn:isbn:" + fm.ISBN)
	}
	mod := md.CreateElement("meta")
	mod.CreateAttr("property", "dcterms:modified")
	mod.SetText(b.opts.Modified.UTC().Format("2006-01-02T15:04:05Z"))

	manifest := pkg.CreateElement("manifest")
	item := func(id, href, mediaType, props string) {
		el := manifest.CreateElement("item")
		el.CreateAttr("id", id)
		el.CreateAttr("href", href)
		el.CreateAttr("media-type", mediaType)
		if props != "" {
			el.CreateAttr("properties", props)
		}
	}
	item("nav", "nav.xhtml", xhtmlType, "nav")
	item("ncx", "toc.ncx", "application/x-dtbncx+xml", "")
	item("css", "style.css", "text/css", "")
	for _, e := range b.entries {
		item(e.id, e.href, e.mediaType, e.properties)
	}

	spine := pkg.CreateElement("spine")
	spine.CreateAttr("toc", "ncx")
	for _, e := range b.entries {
		if e.spine {
			spine.CreateElement("itemref").CreateAttr("idref", e.id)
		}
	}

	doc.Indent(2)
	return doc
}

func newXHTML(title string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective("DOCTYPE html")

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", "http://www.w3.org/1999/xhtml")
	head := html.CreateElement("head")
	head.CreateElement("title").SetText(title)
	link := head.CreateElement("link")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("href", "../style.css")
	return doc, html.CreateElement("body")
}

// setBodyType marks a front matter document with its epub:type semantics.
func setBodyType(doc *etree.Document, body *etree.Element, typ string) {
	doc.SelectElement("html").CreateAttr("xmlns:epub", "http://www.idpf.org/2007/ops")
	body.CreateAttr("epub:type", typ)
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ""
}

func render(doc *etree.Document) []byte {
	var buf bytes.Buffer
	doc.Indent(2)
	doc.WriteTo(&buf)
	return buf.Bytes()
}

func writeMimetype(zw *zip.Writer) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func writeContainer(zw *zip.Writer) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	c := doc.CreateElement("container")
	c.CreateAttr("version", "1.0")
	c.CreateAttr("xmlns", "urn:oasis:names:tc:opendocument:xmlns:container")
	rf := c.CreateElement("rootfiles").CreateElement("rootfile")
	rf.CreateAttr("full-path", path.Join(oebpsDir, "content.opf"))
	rf.CreateAttr("media-type", "application/oebps-package+xml")

	doc.Indent(2)
	return writeXMLToZip(zw, "META-INF/container.xml", doc)
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
