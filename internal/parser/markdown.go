package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/russross/blackfriday/v2"
	"gopkg.in/yaml.v3"

	"github.com/yuanying/kdpforge/internal/manuscript"
)

// markdownMeta is the optional YAML block opening a Markdown manuscript.
type markdownMeta struct {
	Title      string `yaml:"title,omitempty"`
	Author     string `yaml:"author,omitempty"`
	Copyright  string `yaml:"copyright,omitempty"`
	ISBN       string `yaml:"isbn,omitempty"`
	Dedication string `yaml:"dedication,omitempty"`
}

// FrontMatterBlock renders fm as the YAML block a Markdown manuscript
// opens with, or nil when fm is empty.
func FrontMatterBlock(fm manuscript.FrontMatter) ([]byte, error) {
	if fm == (manuscript.FrontMatter{}) {
		return nil, nil
	}
	out, err := yaml.Marshal(markdownMeta{
		Title:      fm.Title,
		Author:     fm.Author,
		Copyright:  fm.Copyright,
		ISBN:       fm.ISBN,
		Dedication: fm.Dedication,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode front matter: %w", err)
	}
	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(out)
	b.WriteString("---\n\n")
	return b.Bytes(), nil
}

// markdownToHTML renders a Markdown manuscript. A leading "---" delimited
// YAML block supplies front matter; a malformed block is left in the text.
func markdownToHTML(data []byte) (string, manuscript.FrontMatter) {
	var fm manuscript.FrontMatter
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	if rest, ok := bytes.CutPrefix(data, []byte("---\n")); ok {
		if end := bytes.Index(rest, []byte("\n---")); end >= 0 {
			var meta markdownMeta
			if err := yaml.Unmarshal(rest[:end], &meta); err == nil {
				fm = manuscript.FrontMatter{
					Title:      strings.TrimSpace(meta.Title),
					Author:     strings.TrimSpace(meta.Author),
					Copyright:  strings.TrimSpace(meta.Copyright),
					ISBN:       strings.TrimSpace(meta.ISBN),
					Dedication: strings.TrimSpace(meta.Dedication),
				}
				data = rest[end+len("\n---"):]
				if i := bytes.IndexByte(data, '\n'); i >= 0 {
					data = data[i+1:]
				} else {
					data = nil
				}
			}
		}
	}

	// Typography is left to CleanText, so SmartyPants stays off.
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML,
	})
	out := blackfriday.Run(data,
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer))
	return string(out), fm
}
