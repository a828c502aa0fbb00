package parser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Format identifies a manuscript input format.
type Format string

const (
	FormatDOCX     Format = "docx"
	FormatEPUB     Format = "epub"
	FormatMarkdown Format = "md"
	// FormatUnknown is detected for input that is not a manuscript.
	FormatUnknown Format = ""
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "docx":
		return FormatDOCX, nil
	case "epub":
		return FormatEPUB, nil
	case "md", "markdown", "txt":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported manuscript format %q", s)
}

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// DetectFormat picks the input format from the file name, falling back to
// the content. Nameless text is treated as Markdown; anything else that is
// neither a zip nor an OLE container is FormatUnknown.
func DetectFormat(name string, data []byte) Format {
	ext := filepath.Ext(name)
	if ext != "" {
		if f, err := ParseFormat(ext); err == nil {
			return f
		}
	}
	switch {
	case bytes.HasPrefix(data, zipMagic):
		if isEPUBContainer(data) {
			return FormatEPUB
		}
		return FormatDOCX
	case bytes.HasPrefix(data, oleMagic):
		return FormatDOCX
	}
	if ext == "" && isText(data) {
		return FormatMarkdown
	}
	return FormatUnknown
}

// isText reports whether data is NUL-free UTF-8.
func isText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0
}

// isEPUBContainer checks for the stored mimetype entry that must open every
// EPUB archive.
func isEPUBContainer(data []byte) bool {
	const header = 30
	if len(data) < header {
		return false
	}
	nameLen := int(binary.LittleEndian.Uint16(data[26:28]))
	extraLen := int(binary.LittleEndian.Uint16(data[28:30]))
	body := header + nameLen + extraLen
	if nameLen != len("mimetype") || len(data) < body {
		return false
	}
	return string(data[header:header+nameLen]) == "mimetype" &&
		bytes.HasPrefix(data[body:], []byte("application/epub+zip"))
}
