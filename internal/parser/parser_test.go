package parser

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/yuanying/kdpforge/internal/epub"
	"github.com/yuanying/kdpforge/internal/manuscript"
)

const testStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/></w:style>
  <w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/></w:style>
  <w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/></w:style>
</w:styles>`

const testCore = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <dc:title>The Lighthouse</dc:title>
  <dc:creator>Jane Doe</dc:creator>
</cp:coreProperties>`

// createTestDOCX builds a DOCX package in memory around the given
// paragraph XML.
func createTestDOCX(t *testing.T, body string) []byte {
	t.Helper()
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
 xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
 xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
 xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><w:body>` +
		body + `<w:sectPr/></w:body></w:document>`

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, part := range []struct{ name, content string }{
		{"[Content_Types].xml", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"word/document.xml", document},
		{"word/styles.xml", testStyles},
		{"docProps/core.xml", testCore},
	} {
		fw, err := w.Create(part.name)
		if err != nil {
			t.Fatalf("failed to create %s: %v", part.name, err)
		}
		if _, err := fw.Write([]byte(part.content)); err != nil {
			t.Fatalf("failed to write %s: %v", part.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func para(style, text string) string {
	ppr := ""
	if style != "" {
		ppr = `<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`
	}
	return `<w:p>` + ppr + `<w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func mustParse(t *testing.T, data []byte, opts Options) *manuscript.Content {
	t.Helper()
	content, err := Parse(data, opts)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return content
}

func titles(content *manuscript.Content) []string {
	var out []string
	for _, ch := range content.Chapters {
		out = append(out, ch.Title)
	}
	return out
}

func TestParse_DOCXHeadings(t *testing.T) {
	body := para("Title", "The Lighthouse") +
		para("", "by Jane Doe") +
		para("Heading1", "Arrival") +
		para("", "The boat came in at dusk...") +
		para("Heading2", "The Stairs") +
		para("", `She said "climb" and they did.`) +
		para("Heading1", "Departure") +
		para("", "Dawn.")

	content := mustParse(t, createTestDOCX(t, body), Options{Name: "book.docx"})

	if got, want := titles(content), []string{"Arrival", "The Stairs", "Departure"}; !slices.Equal(got, want) {
		t.Fatalf("chapters = %v, want %v", got, want)
	}
	for i, ch := range content.Chapters {
		if ch.Number != i+1 {
			t.Errorf("chapter %d Number = %d", i, ch.Number)
		}
	}
	if content.Chapters[1].Level != 2 {
		t.Errorf("second chapter level = %d, want 2", content.Chapters[1].Level)
	}
	if got := content.Chapters[0].Paragraphs[0].Text; got != "The boat came in at dusk…" {
		t.Errorf("paragraph text = %q", got)
	}
	if got := content.Chapters[1].Paragraphs[0].Text; got != "She said “climb” and they did." {
		t.Errorf("paragraph text = %q", got)
	}
	if content.FrontMatter.Title != "The Lighthouse" || content.FrontMatter.Author != "Jane Doe" {
		t.Errorf("front matter = %+v", content.FrontMatter)
	}
	if slices.Contains(content.DetectedIssues, IssueIntroduction) {
		t.Error("title page text should not open an Introduction chapter")
	}
}

func TestParse_NoHeadingsFallback(t *testing.T) {
	md := "It was a dark night.\n\nThe rain fell on the roof.\n\nNobody slept.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})

	if len(content.Chapters) != 1 {
		t.Fatalf("len(Chapters) = %d, want 1", len(content.Chapters))
	}
	ch := content.Chapters[0]
	if ch.Title != "Chapter 1" || ch.Number != 1 || ch.Level != 1 {
		t.Errorf("chapter = %q number %d level %d", ch.Title, ch.Number, ch.Level)
	}
	if len(ch.Paragraphs) != 3 {
		t.Errorf("len(Paragraphs) = %d, want 3", len(ch.Paragraphs))
	}
	if !slices.Contains(content.DetectedIssues, IssueNoHeadings) {
		t.Errorf("issues = %v, want %q", content.DetectedIssues, IssueNoHeadings)
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	for name, data := range map[string][]byte{
		"markdown": []byte("  \n\n"),
		"docx":     createTestDOCX(t, ""),
	} {
		t.Run(name, func(t *testing.T) {
			content := mustParse(t, data, Options{Name: "empty." + name})
			if len(content.Chapters) != 0 {
				t.Errorf("len(Chapters) = %d, want 0", len(content.Chapters))
			}
			if content.EstimatedPageCount != manuscript.MinKDPPages {
				t.Errorf("EstimatedPageCount = %d, want %d", content.EstimatedPageCount, manuscript.MinKDPPages)
			}
			if slices.Contains(content.DetectedIssues, IssueNoHeadings) {
				t.Error("empty document should not report a synthetic chapter")
			}
		})
	}
}

func TestParse_IntroductionChapter(t *testing.T) {
	md := "A short preface.\n\n# Chapter One\n\nBody text.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})

	if got, want := titles(content), []string{"Introduction", "Chapter One"}; !slices.Equal(got, want) {
		t.Fatalf("chapters = %v, want %v", got, want)
	}
	if got := content.Chapters[0].Paragraphs[0].Text; got != "A short preface." {
		t.Errorf("introduction text = %q", got)
	}
	if !slices.Contains(content.DetectedIssues, IssueIntroduction) {
		t.Errorf("issues = %v, want %q", content.DetectedIssues, IssueIntroduction)
	}
}

func TestParse_HeadingDetectors(t *testing.T) {
	md := "CHAPTER ONE\n\nIt began.\n\n**Into the Woods**\n\nTrees.\n\nCHAPTER TWO\n\nIt ended.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})

	want := []string{"CHAPTER ONE", "Into the Woods", "CHAPTER TWO"}
	if got := titles(content); !slices.Equal(got, want) {
		t.Fatalf("chapters = %v, want %v", got, want)
	}
	for _, issue := range []string{
		`Treated "CHAPTER ONE" as a chapter heading (chapter-keyword).`,
		`Treated "Into the Woods" as a chapter heading (bold-short).`,
		`Treated "CHAPTER TWO" as a chapter heading (chapter-keyword).`,
	} {
		if !slices.Contains(content.DetectedIssues, issue) {
			t.Errorf("missing issue %q in %v", issue, content.DetectedIssues)
		}
	}
	if slices.Contains(content.DetectedIssues, IssueNoHeadings) {
		t.Error("fallback issue reported although detectors fired")
	}
}

func TestParse_DetectorsSkippedWithHeadings(t *testing.T) {
	md := "# Real Heading\n\nCHAPTER ONE\n\nText.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})
	if len(content.Chapters) != 1 || len(content.Chapters[0].Paragraphs) != 2 {
		t.Fatalf("detectors ran on a document with heading markup: %+v", content.Chapters)
	}
}

func TestParse_CustomDetectors(t *testing.T) {
	md := "CHAPTER ONE\n\nIt began.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown, Detectors: []Detector{}})
	if got := titles(content); !slices.Equal(got, []string{"Chapter 1"}) {
		t.Errorf("chapters = %v, want the synthetic chapter only", got)
	}
}

func TestParse_ParagraphFlags(t *testing.T) {
	md := "# One\n\n*All of this is italic.*\n\nOnly *part* is italic.\n\n***Both.***\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})

	paras := content.Chapters[0].Paragraphs
	if len(paras) != 3 {
		t.Fatalf("len(Paragraphs) = %d, want 3", len(paras))
	}
	if !paras[0].Italic || paras[0].Bold {
		t.Errorf("paragraph 0 = %+v, want italic only", paras[0])
	}
	if paras[1].Italic {
		t.Errorf("paragraph 1 = %+v, want no flags", paras[1])
	}
	if !paras[2].Italic || !paras[2].Bold {
		t.Errorf("paragraph 2 = %+v, want bold and italic", paras[2])
	}
}

func TestParse_HeadingLevels(t *testing.T) {
	md := "# One\n\nA.\n\n## Two\n\nB.\n\n#### Deep\n\nC.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})

	var levels []int
	for _, ch := range content.Chapters {
		levels = append(levels, ch.Level)
	}
	if want := []int{1, 2, 3}; !slices.Equal(levels, want) {
		t.Errorf("levels = %v, want %v", levels, want)
	}
}

func TestParse_TitleOnlyChapterRetained(t *testing.T) {
	md := "# One\n\n# Two\n\nText.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})
	if len(content.Chapters) != 2 || len(content.Chapters[0].Paragraphs) != 0 {
		t.Fatalf("chapters = %+v", content.Chapters)
	}
}

func TestParse_PageEstimate(t *testing.T) {
	tests := []struct {
		words     int
		want      int
		wantIssue string
	}{
		{1300, 24, "below the KDP minimum"},
		{9000, 30, ""},
		{300 * 900, 900, "exceeds the KDP maximum"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.words), func(t *testing.T) {
			md := "# One\n\n" + strings.Repeat("word ", tt.words) + "\n"
			content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})
			if content.EstimatedPageCount != tt.want {
				t.Errorf("EstimatedPageCount = %d, want %d", content.EstimatedPageCount, tt.want)
			}
			found := ""
			for _, issue := range content.DetectedIssues {
				if strings.HasPrefix(issue, "Estimated length") {
					found = issue
				}
			}
			if tt.wantIssue == "" && found != "" {
				t.Errorf("unexpected issue %q", found)
			}
			if tt.wantIssue != "" && !strings.Contains(found, tt.wantIssue) {
				t.Errorf("issue = %q, want it to mention %q", found, tt.wantIssue)
			}
		})
	}
}

func TestParse_MarkdownFrontMatter(t *testing.T) {
	md := "---\ntitle: My Book\nauthor: A. Writer\nisbn: \"9780000000000\"\ndedication: For you.\n---\n# One\n\nText.\n"
	content := mustParse(t, []byte(md), Options{Name: "book.md"})

	want := manuscript.FrontMatter{Title: "My Book", Author: "A. Writer", ISBN: "9780000000000", Dedication: "For you."}
	if content.FrontMatter != want {
		t.Errorf("FrontMatter = %+v, want %+v", content.FrontMatter, want)
	}
	if got := titles(content); !slices.Equal(got, []string{"One"}) {
		t.Errorf("chapters = %v", got)
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestParse_Images(t *testing.T) {
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testPNG(t))
	md := "# One\n\nBefore.\n\n![A red dot](" + uri + ")\n\nAfter.\n"
	content := mustParse(t, []byte(md), Options{Format: FormatMarkdown})

	ch := content.Chapters[0]
	if len(ch.Images) != 1 {
		t.Fatalf("len(Images) = %d, want 1", len(ch.Images))
	}
	if ch.Images[0].ContentType != "image/png" || ch.Images[0].Alt != "A red dot" {
		t.Errorf("image = %s %q", ch.Images[0].ContentType, ch.Images[0].Alt)
	}
	if !bytes.Equal(ch.Images[0].Data, testPNG(t)) {
		t.Error("image data not decoded")
	}
	if len(ch.Paragraphs) != 2 {
		t.Errorf("len(Paragraphs) = %d, want 2", len(ch.Paragraphs))
	}
}

func TestParse_UnresolvedImageReported(t *testing.T) {
	body := para("Heading1", "One") +
		`<w:p><w:r><w:drawing><wp:inline><wp:docPr id="1" name="Picture 1"/>
<a:graphic><a:graphicData><a:blip r:embed="rId99"/></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>` +
		para("", "Text.")
	content := mustParse(t, createTestDOCX(t, body), Options{Format: FormatDOCX})

	if len(content.Chapters[0].Images) != 0 {
		t.Errorf("len(Images) = %d, want 0", len(content.Chapters[0].Images))
	}
	want := "1 embedded image(s) could not be read and were skipped."
	if !slices.Contains(content.DetectedIssues, want) {
		t.Errorf("issues = %v, want %q", content.DetectedIssues, want)
	}
}

func TestParse_SanitizedImageReported(t *testing.T) {
	md := "# One\n\nA figure: <img src=\"data:image/bmp;base64,Qk0=\" alt=\"Figure\"> follows.\n\n" +
		"<img src=\"data:image/x-emf;base64,AQAAAA==\"/>\n"
	res, err := Convert([]byte(md), Options{Format: FormatMarkdown})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if strings.Contains(res.HTML, "image/bmp") || strings.Contains(res.HTML, "image/x-emf") {
		t.Errorf("unsupported image survived sanitizing: %s", res.HTML)
	}
	want := "2 embedded image(s) could not be read and were skipped."
	if !slices.Contains(res.Content.DetectedIssues, want) {
		t.Errorf("issues = %v, want %q", res.Content.DetectedIssues, want)
	}
}

func TestParse_EPUB(t *testing.T) {
	src := &manuscript.Content{
		FrontMatter: manuscript.FrontMatter{Title: "Round Trip", Author: "Jane Doe", Dedication: "For Sam."},
		Chapters: []manuscript.Chapter{
			{Number: 1, Title: "Arrival", Level: 1, Paragraphs: []manuscript.Paragraph{{Text: "The boat came in."}}},
			{Number: 2, Title: "The Stairs", Level: 2, Paragraphs: []manuscript.Paragraph{{Text: "Steps.", Bold: true}}},
			{Number: 3, Title: "Departure", Level: 1, Paragraphs: []manuscript.Paragraph{{Text: "Gone."}}},
		},
	}
	var buf bytes.Buffer
	if err := epub.Write(&buf, src, epub.WriteOptions{Modified: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("epub.Write() error = %v", err)
	}

	if f := DetectFormat("", buf.Bytes()); f != FormatEPUB {
		t.Errorf("DetectFormat() = %q, want epub", f)
	}
	content := mustParse(t, buf.Bytes(), Options{})

	if got, want := titles(content), []string{"Arrival", "The Stairs", "Departure"}; !slices.Equal(got, want) {
		t.Fatalf("chapters = %v, want %v", got, want)
	}
	if content.Chapters[1].Level != 2 || !content.Chapters[1].Paragraphs[0].Bold {
		t.Errorf("chapter 2 = %+v", content.Chapters[1])
	}
	fm := content.FrontMatter
	if fm.Title != "Round Trip" || fm.Author != "Jane Doe" || fm.Dedication != "For Sam." {
		t.Errorf("FrontMatter = %+v", fm)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		opts    Options
		wantErr error
	}{
		{"corrupt docx", []byte("PK\x03\x04garbage"), Options{Name: "a.docx"}, manuscript.ErrCorruptPackage},
		{"encrypted docx", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0}, Options{}, manuscript.ErrEncrypted},
		{"corrupt epub", []byte("not a zip"), Options{Format: FormatEPUB}, manuscript.ErrCorruptPackage},
		{"unknown format", []byte("x"), Options{Format: "pdf"}, manuscript.ErrCorruptPackage},
		{"pdf by name", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"), Options{Name: "book.pdf"}, manuscript.ErrCorruptPackage},
		{"pdf without name", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n"), Options{}, manuscript.ErrCorruptPackage},
		{"rtf", []byte(`{\rtf1\ansi Hello}`), Options{Name: "book.rtf"}, manuscript.ErrCorruptPackage},
		{"doc that is not ole", []byte("plain words"), Options{Name: "book.doc"}, manuscript.ErrCorruptPackage},
		{"binary without name", []byte{0x89, 'P', 'N', 'G', 0, 0, 0, 0}, Options{}, manuscript.ErrCorruptPackage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, tt.opts)
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			var pe *manuscript.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error type = %T, want *manuscript.ParseError", err)
			}
			if pe.Hint != manuscript.ParseHint {
				t.Errorf("Hint = %q", pe.Hint)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	docx := createTestDOCX(t, "")
	tests := []struct {
		name string
		file string
		data []byte
		want Format
	}{
		{"docx by name", "Book.DOCX", nil, FormatDOCX},
		{"epub by name", "book.epub", nil, FormatEPUB},
		{"markdown by name", "notes.markdown", nil, FormatMarkdown},
		{"txt by name", "notes.txt", nil, FormatMarkdown},
		{"docx by content", "", docx, FormatDOCX},
		{"ole by content", "upload", []byte{0xD0, 0xCF, 0x11, 0xE0}, FormatDOCX},
		{"nameless text", "upload", []byte("# Hello"), FormatMarkdown},
		{"nameless empty", "", nil, FormatMarkdown},
		{"unsupported extension", "upload.bin", []byte("# Hello"), FormatUnknown},
		{"nameless binary", "", []byte("text\x00with nul"), FormatUnknown},
		{"nameless invalid utf8", "", []byte{0xff, 0xfe, 'a'}, FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.file, tt.data); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvert_ReturnsSanitizedHTML(t *testing.T) {
	md := "# One\n\n<script>alert(1)</script>\n\nText with <span onclick=\"x()\">span</span>.\n"
	res, err := Convert([]byte(md), Options{Format: FormatMarkdown})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if strings.Contains(res.HTML, "script") || strings.Contains(res.HTML, "onclick") {
		t.Errorf("HTML not sanitized: %s", res.HTML)
	}
	if len(res.Content.Chapters) != 1 {
		t.Errorf("len(Chapters) = %d", len(res.Content.Chapters))
	}
}

func TestFrontMatterBlock(t *testing.T) {
	if block, err := FrontMatterBlock(manuscript.FrontMatter{}); err != nil || block != nil {
		t.Fatalf("FrontMatterBlock(empty) = %q, %v; want nil", block, err)
	}

	fm := manuscript.FrontMatter{Title: "The Lighthouse", Author: "Jane Doe", ISBN: "978-1-23456-789-7"}
	block, err := FrontMatterBlock(fm)
	if err != nil {
		t.Fatalf("FrontMatterBlock() error = %v", err)
	}
	if strings.Contains(string(block), "dedication") {
		t.Errorf("empty fields not omitted:\n%s", block)
	}

	content := mustParse(t, append(block, "# One\n\nBody.\n"...), Options{Format: FormatMarkdown})
	if content.FrontMatter != fm {
		t.Errorf("FrontMatter = %+v, want %+v", content.FrontMatter, fm)
	}
	if len(content.Chapters) != 1 || content.Chapters[0].Title != "One" {
		t.Errorf("Chapters = %+v", content.Chapters)
	}
}
