// Package docx converts a Word (OOXML) package into semantic HTML.
//
// Only the parts that carry manuscript structure are read: the main
// document part, the style table, the document relationships (for
// embedded images) and the core properties (for title and author).
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	documentPart = "word/document.xml"
	stylesPart   = "word/styles.xml"
	relsPart     = "word/_rels/document.xml.rels"
	corePart     = "docProps/core.xml"

	// MaxDepth bounds XML element nesting in the document part.
	MaxDepth = 256

	maxPartSize = 64 << 20
)

// oleMagic starts every OLE compound file. Word stores password-protected
// documents in this container instead of a zip package.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// Document is a converted DOCX package.
type Document struct {
	HTML   string
	Title  string
	Author string
	// Skipped counts embedded images whose part could not be resolved.
	Skipped int
}

// pkg is an opened DOCX zip.
type pkg struct {
	files map[string]*zip.File
}

// ToHTML converts the DOCX bytes into semantic HTML. Failures wrap one of
// manuscript.ErrEncrypted, manuscript.ErrCorruptPackage,
// manuscript.ErrMissingBody or manuscript.ErrTooDeep.
func ToHTML(data []byte) (*Document, error) {
	if bytes.HasPrefix(data, oleMagic) {
		return nil, manuscript.ErrEncrypted
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", manuscript.ErrCorruptPackage, err)
	}

	p := &pkg{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		p.files[strings.TrimPrefix(f.Name, "/")] = f
	}
	if _, ok := p.files["EncryptedPackage"]; ok {
		return nil, manuscript.ErrEncrypted
	}

	body, err := p.readFile(documentPart)
	if err != nil {
		if errors.Is(err, errPartNotFound) {
			return nil, manuscript.ErrMissingBody
		}
		return nil, fmt.Errorf("%w: %v", manuscript.ErrCorruptPackage, err)
	}

	st := p.loadStyles()
	rels := p.loadRelationships()

	conv := &converter{
		styles: st,
		images: func(id string) (string, bool) {
			target, ok := rels[id]
			if !ok {
				return "", false
			}
			return p.dataURI(target)
		},
	}
	out, err := conv.convert(body)
	if err != nil {
		return nil, err
	}

	doc := &Document{HTML: out, Skipped: conv.skipped}
	if core, err := p.readFile(corePart); err == nil {
		doc.Title, doc.Author = parseCoreProperties(core)
	}
	return doc, nil
}

var errPartNotFound = errors.New("part not found")

func (p *pkg) readFile(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errPartNotFound)
	}
	if f.UncompressedSize64 > maxPartSize {
		return nil, fmt.Errorf("%s: part too large (%d bytes)", name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

type relationships struct {
	Items []struct {
		ID         string `xml:"Id,attr"`
		Type       string `xml:"Type,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// loadRelationships maps relationship IDs of internal image parts to
// package paths.
func (p *pkg) loadRelationships() map[string]string {
	out := make(map[string]string)
	data, err := p.readFile(relsPart)
	if err != nil {
		return out
	}
	var rels relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return out
	}
	for _, r := range rels.Items {
		if r.TargetMode == "External" || !strings.HasSuffix(r.Type, "/image") {
			continue
		}
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("word", target)
		}
		out[r.ID] = target
	}
	return out
}

type coreProperties struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}

func parseCoreProperties(data []byte) (title, author string) {
	var cp coreProperties
	if err := xml.Unmarshal(data, &cp); err != nil {
		return "", ""
	}
	return strings.TrimSpace(cp.Title), strings.TrimSpace(cp.Creator)
}
