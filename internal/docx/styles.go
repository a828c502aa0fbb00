package docx

import (
	"encoding/base64"
	"encoding/xml"
	"mime"
	"path"
	"strconv"
	"strings"
)

type valAttr struct {
	Val string `xml:"val,attr"`
}

type styleTable struct {
	Styles []struct {
		Type    string   `xml:"type,attr"`
		ID      string   `xml:"styleId,attr"`
		Name    valAttr  `xml:"name"`
		BasedOn valAttr  `xml:"basedOn"`
		Outline *valAttr `xml:"pPr>outlineLvl"`
	} `xml:"style"`
}

// maxStyleChain bounds basedOn resolution, which may loop in broken files.
const maxStyleChain = 16

type style struct {
	name    string
	basedOn string
	// outline is the heading level from w:outlineLvl, 0 for body text and
	// -1 when the style sets none.
	outline int
}

// styles maps style IDs to their definitions.
type styles map[string]style

func (p *pkg) loadStyles() styles {
	out := make(styles)
	data, err := p.readFile(stylesPart)
	if err != nil {
		return out
	}
	var t styleTable
	if err := xml.Unmarshal(data, &t); err != nil {
		return out
	}
	for _, s := range t.Styles {
		if s.ID == "" {
			continue
		}
		st := style{
			name:    strings.ToLower(strings.TrimSpace(s.Name.Val)),
			basedOn: s.BasedOn.Val,
			outline: -1,
		}
		if s.Outline != nil {
			if level, ok := outlineLevel(s.Outline.Val); ok {
				st.outline = level
			}
		}
		out[s.ID] = st
	}
	return out
}

// outlineLevel maps a w:outlineLvl value to a heading level. Level 9 and
// above is body text and maps to 0.
func outlineLevel(val string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil || n < 0 {
		return 0, false
	}
	if n >= 9 {
		return 0, true
	}
	return min(n+1, 6), true
}

// name resolves a style ID. Documents without a style table still use the
// built-in IDs ("Heading1", "Strong"), so the ID itself is the fallback.
func (s styles) name(id string) string {
	if st, ok := s[id]; ok && st.name != "" {
		return st.name
	}
	return strings.ToLower(id)
}

// headingLevel returns the HTML heading level for a paragraph style, or 0.
// A style is a heading when its name is "heading N" or it sets an outline
// level; otherwise the style it is based on decides. "Title" and
// "Subtitle" are not headings.
func (s styles) headingLevel(id string) int {
	seen := make(map[string]bool)
	for i := 0; id != "" && i < maxStyleChain && !seen[id]; i++ {
		seen[id] = true
		if n := headingName(s.name(id)); n > 0 {
			return n
		}
		st, ok := s[id]
		if !ok {
			return 0
		}
		if st.outline >= 0 {
			return st.outline
		}
		id = st.basedOn
	}
	return 0
}

func headingName(name string) int {
	rest, ok := strings.CutPrefix(strings.ReplaceAll(name, " ", ""), "heading")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > 6 {
		return 0
	}
	return n
}

// characterFlags returns the emphasis carried by a character style.
func (s styles) characterFlags(id string) (bold, italic bool) {
	switch s.name(id) {
	case "strong", "bold":
		return true, false
	case "emphasis", "intense emphasis", "subtle emphasis":
		return false, true
	}
	return false, false
}

// dataURI reads an image part and encodes it as a data: URI.
func (p *pkg) dataURI(name string) (string, bool) {
	data, err := p.readFile(name)
	if err != nil || len(data) == 0 {
		return "", false
	}
	ct := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if !strings.HasPrefix(ct, "image/") {
		ct = "application/octet-stream"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data), true
}
