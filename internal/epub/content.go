package epub

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Content is a parsed XHTML content document.
type Content struct {
	ID        string            // Manifest ID
	Path      string            // File path
	Document  *goquery.Document // Parsed HTML document
	ImageRefs []string          // Referenced image paths
}

// LoadContent parses an XHTML content document. path is the document's
// location in the package and anchors relative image references.
func LoadContent(id, path string, content []byte) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML: %w", err)
	}

	c := &Content{
		ID:       id,
		Path:     path,
		Document: doc,
	}

	baseDir := pathDir(path)
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && !strings.HasPrefix(src, "data:") {
			c.ImageRefs = append(c.ImageRefs, resolvePath(baseDir, src))
		}
	})

	return c, nil
}

// InlineImages rewrites every img src to a data: URI read through readFile.
// Images that cannot be read are removed; the count is returned.
func (c *Content) InlineImages(readFile func(string) ([]byte, error)) int {
	skipped := 0
	baseDir := pathDir(c.Path)
	c.Document.Find("img").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if strings.HasPrefix(src, "data:") {
			return
		}
		resolved := resolvePath(baseDir, src)
		data, err := readFile(resolved)
		if src == "" || err != nil || len(data) == 0 {
			s.Remove()
			skipped++
			return
		}
		s.SetAttr("src", dataURI(resolved, data))
	})
	return skipped
}

// BodyHTML returns the inner HTML of the body element, without scripts
// and styles.
func (c *Content) BodyHTML() (string, error) {
	body := c.Document.Find("body")
	if body.Length() == 0 {
		body = c.Document.Selection
	}
	body.Find("script, style").Remove()
	html, err := body.First().Html()
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %w", c.Path, err)
	}
	return html, nil
}

// Front matter semantics recognized on a document's body element.
const (
	TypeTitlePage     = "titlepage"
	TypeHalfTitlePage = "halftitlepage"
	TypeCopyrightPage = "copyright-page"
	TypeDedication    = "dedication"
	TypeTOC           = "toc"
)

// BodyType returns the epub:type tokens declared on the body element.
func (c *Content) BodyType() []string {
	return strings.Fields(c.Document.Find("body").AttrOr("epub:type", ""))
}

// Text returns the whitespace-collapsed text of the body.
func (c *Content) Text() string {
	return strings.Join(strings.Fields(c.Document.Find("body").Text()), " ")
}

func dataURI(name string, data []byte) string {
	ct := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func pathDir(p string) string {
	d := path.Dir(p)
	if d == "." {
		return ""
	}
	return d
}

// resolvePath resolves a relative reference against a base directory,
// dropping any fragment.
// baseDir: base directory (e.g., "OEBPS/text" for "OEBPS/text/ch1.xhtml")
// relPath: relative path (e.g., "../images/photo.jpg")
// returns: resolved path (e.g., "OEBPS/images/photo.jpg")
func resolvePath(baseDir, relPath string) string {
	if i := strings.IndexByte(relPath, '#'); i >= 0 {
		relPath = relPath[:i]
	}
	return joinPath(baseDir, relPath)
}
