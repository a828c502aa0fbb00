package layout

import "strings"

// Font is one face at one size. Underline is drawn by the PDF writer and
// does not change metrics.
type Font struct {
	Family    string
	Bold      bool
	Italic    bool
	Underline bool
	Size      float64
}

type variant struct{ bold, italic bool }

// variantStyles maps emphasis flags to gofpdf style strings.
var variantStyles = map[variant]string{
	{false, false}: "",
	{true, false}:  "B",
	{false, true}:  "I",
	{true, true}:   "BI",
}

// Style returns the gofpdf style string for the face.
func (f Font) Style() string {
	s := variantStyles[variant{f.Bold, f.Italic}]
	if f.Underline {
		s += "U"
	}
	return s
}

// With returns the same family and size with other emphasis.
func (f Font) With(bold, italic bool) Font {
	f.Bold, f.Italic = bold, italic
	return f
}

// Sized returns the same face at another size.
func (f Font) Sized(size float64) Font {
	f.Size = size
	return f
}

// Standard PDF font families. They need no embedding and are always
// available to gofpdf.
const (
	FamilySerif = "Times"
	FamilySans  = "Helvetica"
	FamilyMono  = "Courier"
)

var familyAliases = map[string]string{
	"times":           FamilySerif,
	"times new roman": FamilySerif,
	"times-roman":     FamilySerif,
	"serif":           FamilySerif,
	"garamond":        FamilySerif,
	"georgia":         FamilySerif,
	"palatino":        FamilySerif,
	"baskerville":     FamilySerif,
	"book antiqua":    FamilySerif,
	"helvetica":       FamilySans,
	"arial":           FamilySans,
	"sans":            FamilySans,
	"sans-serif":      FamilySans,
	"verdana":         FamilySans,
	"calibri":         FamilySans,
	"courier":         FamilyMono,
	"courier new":     FamilyMono,
	"mono":            FamilyMono,
	"monospace":       FamilyMono,
}

// ResolveFamily maps a configured font name onto a standard family. The
// second result is false when the name is unknown and the serif family is
// substituted.
func ResolveFamily(name string) (string, bool) {
	fam, ok := familyAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return FamilySerif, false
	}
	return fam, true
}
