package tokenizer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

const utf8BOM = "\ufeff"

// Load reads the merges and vocabulary artifacts from disk. A missing file
// (or an empty path) yields an empty part rather than an error, so the result
// may be incomplete; callers check Model.Complete before encoding.
func Load(mergesPath, vocabPath string) (*Model, error) {
	mf, err := openOptional(mergesPath)
	if err != nil {
		return nil, fmt.Errorf("open merges %q: %w", mergesPath, err)
	}
	if mf != nil {
		defer mf.Close()
	}

	vf, err := openOptional(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("open vocab %q: %w", vocabPath, err)
	}
	if vf != nil {
		defer vf.Close()
	}

	return LoadFromReaders(readerOrNil(mf), readerOrNil(vf))
}

// LoadFromReaders builds a Model from the two artifacts. A nil reader stands
// for an absent artifact.
func LoadFromReaders(merges, vocab io.Reader) (*Model, error) {
	var (
		rules   []MergeRule
		skipped int
	)
	if merges != nil {
		var err error
		rules, skipped, err = ParseMerges(merges)
		if err != nil {
			return nil, err
		}
	}

	v := Vocabulary{}
	if vocab != nil {
		var err error
		v, err = ParseVocabulary(vocab)
		if err != nil {
			return nil, err
		}
	}

	m := NewModel(rules, v)
	m.skipped = skipped

	return m, nil
}

// ParseMerges reads one rule per line. Lines are trimmed and blank lines
// ignored; a line with fewer than two whitespace-separated fields is skipped
// and counted. Fields past the second are ignored. Rank is the index among
// accepted lines.
func ParseMerges(r io.Reader) ([]MergeRule, int, error) {
	br := bufio.NewReader(r)

	var (
		rules   []MergeRule
		skipped int
		first   = true
	)
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("read merges: %w", err)
		}

		if first {
			line = strings.TrimPrefix(line, utf8BOM)
			first = false
		}

		if trimmed := strings.TrimSpace(line); trimmed != "" {
			fields := strings.Fields(trimmed)
			if len(fields) < 2 {
				skipped++
			} else {
				rules = append(rules, MergeRule{Left: fields[0], Right: fields[1], Rank: len(rules)})
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
	}

	return rules, skipped, nil
}

// ParseVocabulary decodes a flat JSON object of token to id.
func ParseVocabulary(r io.Reader) (Vocabulary, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocab: %w", err)
	}

	var ids map[string]int
	if err := json.Unmarshal(data, &ids); err != nil {
		return Vocabulary{}, fmt.Errorf("decode vocab: %w", err)
	}

	return NewVocabulary(ids)
}

func openOptional(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return f, nil
}

// readerOrNil avoids handing a typed nil *os.File to an io.Reader parameter.
func readerOrNil(f *os.File) io.Reader {
	if f == nil {
		return nil
	}

	return f
}
