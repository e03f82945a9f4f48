// Package text prepares raw user input before it reaches the tokenizer.
package text

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// SampleText is the demo sentence used by preflight checks and benchmarks.
const SampleText = "আমি মেশিন লার্নিং শিখছি"

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// Normalize prepares raw input text for encoding.
// It trims surrounding whitespace, normalizes line endings to \n,
// and rejects empty or whitespace-only input.
func Normalize(s string) (string, error) {
	// Normalize line endings: CRLF → LF, then bare CR → LF.
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.TrimSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// Form is a Unicode normalization form applied before encoding. Merge rules
// are learned over code points, so a form other than FormNone only helps when
// the artifacts were trained on identically normalized text.
type Form string

const (
	FormNone Form = "none"
	FormNFC  Form = "nfc"
	FormNFKC Form = "nfkc"
)

// ParseForm maps a case-insensitive name to a Form. Empty selects FormNone.
func ParseForm(raw string) (Form, error) {
	switch f := Form(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormNone, nil
	case FormNone, FormNFC, FormNFKC:
		return f, nil
	default:
		return "", fmt.Errorf("invalid normalization form %q (expected %s|%s|%s)", raw, FormNone, FormNFC, FormNFKC)
	}
}

// ApplyForm returns s in the given normalization form.
func ApplyForm(s string, f Form) string {
	switch f {
	case FormNFC:
		return norm.NFC.String(s)
	case FormNFKC:
		return norm.NFKC.String(s)
	default:
		return s
	}
}
