package epub

import (
	"fmt"
	"strings"
)

// Document is the readable text of an EPUB package flattened into one
// HTML fragment in spine order.
type Document struct {
	HTML       string
	Title      string
	Author     string
	Language   string
	Identifier string
	Rights     string
	// Dedication is the text of a spine document typed as a dedication.
	Dedication string
	// Skipped counts images that could not be read from the package.
	Skipped int
}

// ToHTML opens the EPUB in data and concatenates the body of every linear
// spine document. Images are inlined as data: URIs. Documents typed as
// title, copyright or contents pages are left out, and a dedication page
// is returned as Document.Dedication.
func ToHTML(data []byte) (*Document, error) {
	r, err := OpenBytes(data)
	if err != nil {
		return nil, err
	}
	opf, err := r.OPF()
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Title:      opf.Metadata.Title,
		Author:     opf.Metadata.Author(),
		Language:   opf.Metadata.Language,
		Identifier: opf.Metadata.Identifier,
		Rights:     opf.Metadata.Rights,
	}

	var b strings.Builder
	for _, ref := range opf.Spine {
		if !ref.Linear {
			continue
		}
		item, ok := opf.Manifest[ref.IDRef]
		if !ok || !isContentDocument(item) {
			continue
		}

		raw, err := r.ReadFile(item.Href)
		if err != nil {
			return nil, fmt.Errorf("spine item %s: %w", ref.IDRef, err)
		}
		c, err := LoadContent(item.ID, item.Href, raw)
		if err != nil {
			return nil, fmt.Errorf("spine item %s: %w", ref.IDRef, err)
		}
		if skip, dedication := frontMatterType(c.BodyType()); skip {
			if dedication {
				doc.Dedication = c.Text()
			}
			continue
		}
		doc.Skipped += c.InlineImages(r.ReadFile)

		body, err := c.BodyHTML()
		if err != nil {
			return nil, err
		}
		b.WriteString(body)
		b.WriteByte('\n')
	}
	doc.HTML = b.String()
	return doc, nil
}

func frontMatterType(types []string) (skip, dedication bool) {
	for _, t := range types {
		switch t {
		case TypeDedication:
			return true, true
		case TypeTitlePage, TypeHalfTitlePage, TypeCopyrightPage, TypeTOC:
			skip = true
		}
	}
	return skip, false
}

func isContentDocument(item ManifestItem) bool {
	for _, p := range item.Properties {
		if p == "nav" {
			return false
		}
	}
	switch item.MediaType {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}
