package parser

import (
	"encoding/base64"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

type segmentKind int

const (
	segParagraph segmentKind = iota
	segHeading
	segImage
)

// segment is one block of the linearized document.
type segment struct {
	kind  segmentKind
	level int
	text  string
	hints StyleHints
	image manuscript.Image
}

// policy is the allow-list applied before linearization. It keeps the
// block and inline structure the parser reads and nothing else.
func policy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6",
		"p", "div", "br", "blockquote", "ul", "ol", "li", "pre",
		"strong", "b", "em", "i", "u", "span", "sup", "sub", "small")
	p.AllowImages()
	p.AllowDataURIImages()
	p.AllowAttrs("alt").OnElements("img")
	return p
}

// Sanitize strips everything outside the manuscript allow-list.
func Sanitize(doc string) string {
	return policy().Sanitize(doc)
}

// countImages counts the img elements in doc.
func countImages(doc string) int {
	n := 0
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return n
		case html.StartTagToken, html.SelfClosingTagToken:
			if name, _ := z.TagName(); atom.Lookup(name) == atom.Img {
				n++
			}
		}
	}
}

var errUnsupportedImage = errors.New("image source is not a base64 data URI")

// segmenter turns sanitized HTML into a flat list of segments with the
// x/net/html tokenizer. Unbalanced markup is tolerated: an unclosed inline
// tag only affects the block it was opened in.
type segmenter struct {
	segments []segment
	skipped  []error

	open  bool
	kind  segmentKind
	level int
	text  strings.Builder

	bold, italic, underline int
	allBold, allItalic      bool
	allUnder, sawText       bool
}

func linearize(doc string) ([]segment, []error) {
	s := &segmenter{}
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				s.skipped = append(s.skipped, err)
			}
			s.flush()
			return s.segments, s.skipped
		case html.TextToken:
			s.addText(string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			s.startTag(tok)
			if tt == html.SelfClosingTagToken {
				s.endTag(tok.DataAtom)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			s.endTag(atom.Lookup(name))
		}
	}
}

func (s *segmenter) begin(kind segmentKind, level int) {
	s.flush()
	s.open = true
	s.kind = kind
	s.level = level
	s.text.Reset()
	s.allBold, s.allItalic, s.allUnder, s.sawText = true, true, true, false
}

func (s *segmenter) flush() {
	if !s.open {
		return
	}
	s.open = false
	text := CleanText(s.text.String())
	s.text.Reset()
	if text == "" {
		return
	}
	seg := segment{kind: s.kind, level: s.level, text: text}
	if s.sawText {
		seg.hints = StyleHints{Bold: s.allBold, Italic: s.allItalic, Underline: s.allUnder}
	}
	s.segments = append(s.segments, seg)
}

func (s *segmenter) addText(raw string) {
	if !s.open {
		if strings.TrimSpace(raw) == "" {
			return
		}
		s.begin(segParagraph, 0)
	}
	s.text.WriteString(raw)
	if strings.TrimSpace(raw) != "" {
		s.sawText = true
		s.allBold = s.allBold && s.bold > 0
		s.allItalic = s.allItalic && s.italic > 0
		s.allUnder = s.allUnder && s.underline > 0
	}
}

func (s *segmenter) startTag(tok html.Token) {
	switch tok.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(tok.Data[1] - '0')
		if level > 3 {
			level = 3
		}
		s.begin(segHeading, level)
	case atom.P, atom.Div, atom.Li, atom.Blockquote, atom.Pre:
		s.begin(segParagraph, 0)
	case atom.Br:
		s.text.WriteByte(' ')
	case atom.Strong, atom.B:
		s.bold++
	case atom.Em, atom.I:
		s.italic++
	case atom.U:
		s.underline++
	case atom.Img:
		s.image(tok)
	}
}

func (s *segmenter) endTag(a atom.Atom) {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.P, atom.Div, atom.Li, atom.Blockquote, atom.Pre:
		s.flush()
		s.bold, s.italic, s.underline = 0, 0, 0
	case atom.Strong, atom.B:
		s.bold = max(0, s.bold-1)
	case atom.Em, atom.I:
		s.italic = max(0, s.italic-1)
	case atom.U:
		s.underline = max(0, s.underline-1)
	}
}

// image emits an image segment. The surrounding block is split around it
// and resumes with the same kind.
func (s *segmenter) image(tok html.Token) {
	var src, alt string
	for _, a := range tok.Attr {
		switch a.Key {
		case "src":
			src = a.Val
		case "alt":
			alt = a.Val
		}
	}
	img, err := decodeDataURI(src)
	if err != nil {
		s.skipped = append(s.skipped, err)
		return
	}
	img.Alt = CleanText(alt)

	wasOpen, kind, level := s.open, s.kind, s.level
	s.flush()
	s.segments = append(s.segments, segment{kind: segImage, image: img})
	if wasOpen {
		s.begin(kind, level)
	}
}

// decodeDataURI decodes a base64 data: URI into an image.
func decodeDataURI(src string) (manuscript.Image, error) {
	rest, ok := strings.CutPrefix(src, "data:")
	if !ok {
		return manuscript.Image{}, errUnsupportedImage
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return manuscript.Image{}, errUnsupportedImage
	}
	ct := strings.TrimSuffix(meta, ";base64")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if p, err := url.PathUnescape(payload); err == nil {
		payload = p
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return manuscript.Image{}, err
	}
	return manuscript.Image{Data: data, ContentType: ct}, nil
}
