package text

import (
	"fmt"
	"strings"
)

// SplitMode selects how an input document is cut into independently encoded
// segments.
type SplitMode string

const (
	SplitNone      SplitMode = "none"
	SplitLines     SplitMode = "lines"
	SplitSentences SplitMode = "sentences"
)

// ParseSplitMode maps a case-insensitive name to a SplitMode. Empty selects
// SplitNone.
func ParseSplitMode(raw string) (SplitMode, error) {
	switch m := SplitMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return SplitNone, nil
	case SplitNone, SplitLines, SplitSentences:
		return m, nil
	default:
		return "", fmt.Errorf("invalid split mode %q (expected %s|%s|%s)", raw, SplitNone, SplitLines, SplitSentences)
	}
}

// Split cuts text into segments according to mode. For SplitSentences,
// maxChars groups consecutive sentences as in ChunkBySentence. Blank segments
// are dropped.
func Split(text string, mode SplitMode, maxChars int) []string {
	switch mode {
	case SplitLines:
		return Lines(text)
	case SplitSentences:
		var out []string
		for _, c := range ChunkBySentence(text, maxChars) {
			if strings.TrimSpace(c) != "" {
				out = append(out, c)
			}
		}
		return out
	default:
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
}

// Lines returns the non-blank lines of text, trimmed.
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}

	return lines
}

// ChunkBySentence splits text into chunks at sentence boundaries, grouping
// consecutive sentences together while staying within maxChars per chunk.
// If maxChars is 0, every sentence becomes its own chunk.
// Sentences that individually exceed maxChars are kept intact as a single chunk.
func ChunkBySentence(text string, maxChars int) []string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{strings.TrimSpace(text)}
	}

	if maxChars <= 0 {
		return sentences
	}

	var chunks []string
	var current strings.Builder

	for _, s := range sentences {
		if current.Len() == 0 {
			current.WriteString(s)
			continue
		}
		// Would appending this sentence (with a space separator) exceed the limit?
		if current.Len()+1+len(s) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(s)
		} else {
			current.WriteByte(' ')
			current.WriteString(s)
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// isTerminator reports sentence-ending punctuation, including the Bengali
// dari (।) and double dari (॥).
func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '।', '॥':
		return true
	}
	return false
}

// splitSentences splits text on sentence-ending punctuation,
// keeping the terminator attached to its sentence.
// Empty segments are dropped.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i, r := range text {
		if isTerminator(r) {
			end := i + len(string(r))
			s := strings.TrimSpace(text[start:end])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = end
		}
	}

	// Trailing text after the last terminator (if any).
	if start < len(text) {
		s := strings.TrimSpace(text[start:])
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

// Words splits text on Unicode whitespace, the same way the encoder does.
func Words(text string) []string {
	return strings.Fields(text)
}
