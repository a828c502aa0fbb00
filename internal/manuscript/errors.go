package manuscript

import (
	"errors"
	"fmt"
)

// Parse failures.
var (
	ErrCorruptPackage = errors.New("not a valid document package")
	ErrMissingBody    = errors.New("document body not found in package")
	ErrEncrypted      = errors.New("document is password-protected")
	ErrTooDeep        = errors.New("XML nesting depth exceeded")
)

// Layout failures.
var (
	ErrUnknownTrimSize = errors.New("unknown trim size")
	ErrFontEmbedding   = errors.New("font embedding failed")
)

// ParseHint is the user-facing hint attached to every ParseError.
const ParseHint = "file may be corrupted or password-protected"

// ParseError reports unreadable or malformed input. It is recoverable at the
// request boundary and maps to a 400 response.
type ParseError struct {
	Op   string
	Hint string
	Err  error
}

// NewParseError wraps err as a ParseError with the default hint.
func NewParseError(op string, err error) *ParseError {
	return &ParseError{Op: op, Hint: ParseHint, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v (%s)", e.Op, e.Err, e.Hint)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LayoutError reports a violated engine invariant, such as an unknown trim
// size or a font that could not be embedded. It maps to a 500 response.
type LayoutError struct {
	Op  string
	Err error
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("layout %s: %v", e.Op, e.Err)
}

func (e *LayoutError) Unwrap() error { return e.Err }

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsLayoutError reports whether err is or wraps a *LayoutError.
func IsLayoutError(err error) bool {
	var le *LayoutError
	return errors.As(err, &le)
}
