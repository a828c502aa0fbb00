package docx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

const (
	nsW = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

type run struct {
	text      string
	bold      bool
	italic    bool
	underline bool
}

type image struct {
	src string
	alt string
}

type paragraph struct {
	style string
	// outline is a direct w:outlineLvl, -1 when the paragraph has none.
	outline int
	runs    []run
	images  []image
}

// converter walks document.xml as a token stream and writes one HTML block
// per Word paragraph. Open paragraphs are kept on a stack.
type converter struct {
	styles  styles
	images  func(relID string) (string, bool)
	skipped int

	out     strings.Builder
	stack   []*paragraph
	cur     *run
	alt     string
	inPPr   bool
	inRPr   bool
	inText  bool
	sawBody bool
}

func (c *converter) convert(data []byte) (string, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", manuscript.ErrCorruptPackage, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth > MaxDepth {
				return "", fmt.Errorf("%w: more than %d levels", manuscript.ErrTooDeep, MaxDepth)
			}
			if c.start(t) {
				if err := d.Skip(); err != nil {
					return "", fmt.Errorf("%w: %v", manuscript.ErrCorruptPackage, err)
				}
				depth--
			}
		case xml.EndElement:
			depth--
			c.end(t)
		case xml.CharData:
			if c.inText && c.cur != nil {
				c.cur.text += string(t)
			}
		}
	}
	if !c.sawBody {
		return "", manuscript.ErrMissingBody
	}
	return c.out.String(), nil
}

func (c *converter) top() *paragraph {
	if len(c.stack) == 0 {
		return nil
	}
	return c.stack[len(c.stack)-1]
}

// start handles an opening tag and reports whether its subtree should be
// skipped.
func (c *converter) start(t xml.StartElement) bool {
	switch t.Name.Local {
	case "Fallback":
		// mc:Fallback duplicates the mc:Choice content.
		return true
	case "txbxContent":
		return true
	case "body":
		c.sawBody = true
	case "p":
		if t.Name.Space == nsW {
			c.stack = append(c.stack, &paragraph{outline: -1})
		}
	case "pPr":
		c.inPPr = true
	case "pStyle":
		if p := c.top(); p != nil && c.inPPr {
			p.style = attr(t, "val")
		}
	case "outlineLvl":
		if p := c.top(); p != nil && c.inPPr {
			if level, ok := outlineLevel(attr(t, "val")); ok {
				p.outline = level
			}
		}
	case "r":
		if t.Name.Space == nsW && c.top() != nil {
			c.cur = &run{}
		}
	case "rPr":
		if !c.inPPr {
			c.inRPr = true
		}
	case "b":
		if c.inRPr && c.cur != nil {
			c.cur.bold = toggle(t)
		}
	case "i":
		if c.inRPr && c.cur != nil {
			c.cur.italic = toggle(t)
		}
	case "u":
		if c.inRPr && c.cur != nil {
			c.cur.underline = toggle(t)
		}
	case "rStyle":
		if c.inRPr && c.cur != nil {
			b, i := c.styles.characterFlags(attr(t, "val"))
			c.cur.bold = c.cur.bold || b
			c.cur.italic = c.cur.italic || i
		}
	case "t":
		if t.Name.Space == nsW && c.cur != nil {
			c.inText = true
		}
	case "tab", "br", "cr":
		if c.cur != nil && !c.inPPr {
			c.cur.text += " "
		}
	case "noBreakHyphen":
		if c.cur != nil {
			c.cur.text += "-"
		}
	case "docPr":
		c.alt = attr(t, "descr")
	case "blip":
		p := c.top()
		if p == nil {
			break
		}
		src, ok := c.images(attrNS(t, nsR, "embed"))
		if !ok {
			c.skipped++
			break
		}
		p.images = append(p.images, image{src: src, alt: c.alt})
		c.alt = ""
	}
	return false
}

func (c *converter) end(t xml.EndElement) {
	switch t.Name.Local {
	case "pPr":
		c.inPPr = false
	case "rPr":
		c.inRPr = false
	case "t":
		c.inText = false
	case "r":
		if p := c.top(); p != nil && c.cur != nil {
			p.runs = append(p.runs, *c.cur)
		}
		c.cur = nil
	case "p":
		if t.Name.Space != nsW || len(c.stack) == 0 {
			return
		}
		p := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		c.emit(p)
	}
}

func (c *converter) emit(p *paragraph) {
	var plain strings.Builder
	for _, r := range p.runs {
		plain.WriteString(r.text)
	}
	text := strings.TrimSpace(plain.String())

	level := p.outline
	if level < 0 {
		level = c.styles.headingLevel(p.style)
	}
	if level > 0 {
		if text != "" {
			fmt.Fprintf(&c.out, "<h%d>%s</h%d>\n", level, html.EscapeString(text), level)
		}
	} else if text != "" {
		c.out.WriteString("<p>")
		writeRuns(&c.out, p.runs)
		c.out.WriteString("</p>\n")
	}

	for _, img := range p.images {
		fmt.Fprintf(&c.out, "<p><img src=\"%s\" alt=\"%s\"/></p>\n",
			html.EscapeString(img.src), html.EscapeString(img.alt))
	}
}

// writeRuns writes runs as inline HTML, merging neighbours that share the
// same emphasis.
func writeRuns(w *strings.Builder, runs []run) {
	for i := 0; i < len(runs); {
		r := runs[i]
		text := r.text
		j := i + 1
		for ; j < len(runs); j++ {
			n := runs[j]
			if n.bold != r.bold || n.italic != r.italic || n.underline != r.underline {
				break
			}
			text += n.text
		}
		i = j

		if text == "" {
			continue
		}
		if r.bold {
			w.WriteString("<strong>")
		}
		if r.italic {
			w.WriteString("<em>")
		}
		if r.underline {
			w.WriteString("<u>")
		}
		w.WriteString(html.EscapeString(text))
		if r.underline {
			w.WriteString("</u>")
		}
		if r.italic {
			w.WriteString("</em>")
		}
		if r.bold {
			w.WriteString("</strong>")
		}
	}
}

// toggle reads an OOXML on/off property. A missing w:val means on.
func toggle(t xml.StartElement) bool {
	switch strings.ToLower(attr(t, "val")) {
	case "0", "false", "off", "none":
		return false
	}
	return true
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func attrNS(t xml.StartElement, space, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value
		}
	}
	return attr(t, local)
}
