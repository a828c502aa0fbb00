package parser

import "testing"

func TestDefaultDetectors(t *testing.T) {
	tests := []struct {
		line  string
		hints StyleHints
		want  string // detector name, "" for no match
	}{
		{"Chapter 1", StyleHints{}, "chapter-keyword"},
		{"CHAPTER TWELVE", StyleHints{}, "chapter-keyword"},
		{"Chapter Twenty-One: The Return", StyleHints{}, "chapter-keyword"},
		{"chapter xiv", StyleHints{}, "chapter-keyword"},
		{"Chapters are hard to write", StyleHints{}, ""},
		{"IV. The Storm", StyleHints{}, "roman-numeral"},
		{"XII", StyleHints{}, "roman-numeral"},
		{"I went to the store.", StyleHints{}, ""},
		{"PART TWO", StyleHints{}, "part-prefix"},
		{"Part of me wanted to stay.", StyleHints{}, ""},
		{"THE LONG NIGHT", StyleHints{}, "all-caps"},
		{"THIS LINE IS FAR TOO LONG TO BE A TITLE", StyleHints{}, ""},
		{"A", StyleHints{}, ""},
		{"Into the Woods", StyleHints{Bold: true}, "bold-short"},
		{"Into the Woods", StyleHints{Italic: true}, ""},
		{"An ordinary sentence that goes on.", StyleHints{}, ""},
	}

	detectors := DefaultDetectors()
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := detect(detectors, tt.line, tt.hints)
			if tt.want == "" {
				if ok {
					t.Fatalf("detect(%q) matched %s, want no match", tt.line, got)
				}
				return
			}
			if !ok || got != tt.want {
				t.Fatalf("detect(%q) = %q, %v, want %q", tt.line, got, ok, tt.want)
			}
		})
	}
}

func TestDetect_LongCandidatesIgnored(t *testing.T) {
	line := "Chapter 1 "
	for len(line) < MaxCandidateLength {
		line += "and more words "
	}
	if name, ok := detect(DefaultDetectors(), line, StyleHints{Bold: true}); ok {
		t.Fatalf("detect() matched %s on a %d character line", name, len(line))
	}
}

func TestDetect_Pluggable(t *testing.T) {
	custom := []Detector{{
		Name:  "scene-break",
		Match: func(line string, _ StyleHints) bool { return line == "* * *" },
	}}
	if name, ok := detect(custom, "* * *", StyleHints{}); !ok || name != "scene-break" {
		t.Fatalf("custom detector not used: %q %v", name, ok)
	}
	if _, ok := detect(custom, "Chapter 1", StyleHints{}); ok {
		t.Fatal("default detectors should not run when replaced")
	}
}
