package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// StyleHints carries the emphasis that covers a whole paragraph.
type StyleHints struct {
	Bold      bool
	Italic    bool
	Underline bool
}

// Detector decides whether a paragraph of a document without heading
// markup is really a chapter heading.
type Detector struct {
	Name  string
	Match func(line string, hints StyleHints) bool
}

// MaxCandidateLength is the length, in characters, below which a paragraph
// is considered by the detectors.
const MaxCandidateLength = 100

const numberWords = `one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|` +
	`fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty|` +
	`sixty|seventy|eighty|ninety|hundred`

var (
	chapterKeywordRe = regexp.MustCompile(`(?i)^chapter\s+(\d+|[ivxlcdm]+|(` + numberWords + `)([\s-](` + numberWords + `))*)\b`)
	romanPrefixRe    = regexp.MustCompile(`^[IVXLCDM]+(?:[.:)]\s*\S.*|[.:)]?\s*)$`)
	partPrefixRe     = regexp.MustCompile(`^PART\s+\S+`)
)

// DefaultDetectors returns the built-in detectors in the order they are
// tried.
func DefaultDetectors() []Detector {
	return []Detector{
		{Name: "chapter-keyword", Match: func(line string, _ StyleHints) bool {
			return chapterKeywordRe.MatchString(line)
		}},
		{Name: "roman-numeral", Match: func(line string, _ StyleHints) bool {
			return romanPrefixRe.MatchString(line)
		}},
		{Name: "part-prefix", Match: func(line string, _ StyleHints) bool {
			return partPrefixRe.MatchString(line)
		}},
		{Name: "all-caps", Match: func(line string, _ StyleHints) bool {
			return utf8.RuneCountInString(line) < 30 && isAllCaps(line)
		}},
		{Name: "bold-short", Match: func(line string, hints StyleHints) bool {
			return hints.Bold && utf8.RuneCountInString(line) < 50
		}},
	}
}

// isAllCaps reports whether line has at least two letters and no
// lower-case ones.
func isAllCaps(line string) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			if unicode.IsLower(r) {
				return false
			}
			letters++
		}
	}
	return letters >= 2 && strings.ToUpper(line) == line
}

// detect returns the first detector matching line, if line is short enough
// to be a candidate.
func detect(detectors []Detector, line string, hints StyleHints) (string, bool) {
	if utf8.RuneCountInString(line) >= MaxCandidateLength {
		return "", false
	}
	for _, d := range detectors {
		if d.Match(line, hints) {
			return d.Name, true
		}
	}
	return "", false
}
