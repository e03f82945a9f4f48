package tokenizer

import (
	"errors"
	"fmt"
)

const (
	// EndOfWordMarker is appended to every word before merging so that merge
	// rules can tell word-final subwords from word-internal ones.
	EndOfWordMarker = "</w>"

	// UnknownID is the id reported for tokens missing from the vocabulary.
	// Vocabulary ids are non-negative, so it never collides with a real id.
	UnknownID = -1
)

// ErrNegativeID is returned when a vocabulary maps a token to a negative id.
var ErrNegativeID = errors.New("vocabulary id must be non-negative")

// Pair is an ordered pair of adjacent symbols.
type Pair struct {
	Left  string
	Right string
}

// MergeRule is a learned pair together with its rank. Rank equals the rule's
// position in the merges artifact; rank 0 has the highest priority.
type MergeRule struct {
	Left  string
	Right string
	Rank  int
}

// Pair returns the rule's symbol pair.
func (r MergeRule) Pair() Pair {
	return Pair{Left: r.Left, Right: r.Right}
}

// Vocabulary maps final subword tokens to ids. It is read-only once built.
type Vocabulary struct {
	ids map[string]int
}

// NewVocabulary copies ids into a new Vocabulary. Negative ids are rejected.
func NewVocabulary(ids map[string]int) (Vocabulary, error) {
	out := make(map[string]int, len(ids))
	for token, id := range ids {
		if id < 0 {
			return Vocabulary{}, fmt.Errorf("token %q: %w (got %d)", token, ErrNegativeID, id)
		}
		out[token] = id
	}

	return Vocabulary{ids: out}, nil
}

// ID returns the id for token and whether it was present.
func (v Vocabulary) ID(token string) (int, bool) {
	id, ok := v.ids[token]
	return id, ok
}

// Lookup returns the id for token, or UnknownID when absent.
func (v Vocabulary) Lookup(token string) int {
	if id, ok := v.ids[token]; ok {
		return id
	}

	return UnknownID
}

// IDs resolves every token, positionally aligned with tokens.
func (v Vocabulary) IDs(tokens []string) []int {
	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = v.Lookup(t)
	}

	return ids
}

// Len returns the number of tokens in the vocabulary.
func (v Vocabulary) Len() int {
	return len(v.ids)
}

// Stats summarizes a loaded model.
type Stats struct {
	Merges       int  `json:"merges"`
	VocabSize    int  `json:"vocab_size"`
	SkippedLines int  `json:"skipped_lines"`
	Complete     bool `json:"complete"`
}

// Model owns the ordered merge rules and the vocabulary. A Model is immutable
// after construction and safe for concurrent use.
type Model struct {
	rules   []MergeRule
	ranks   map[Pair]int
	vocab   Vocabulary
	skipped int
}

// NewModel builds a Model from ordered merge rules and a vocabulary. Each
// rule's rank is its index in rules. When a pair occurs more than once the
// first occurrence's rank is the one used for merging.
func NewModel(rules []MergeRule, vocab Vocabulary) *Model {
	owned := make([]MergeRule, len(rules))
	for i, r := range rules {
		owned[i] = MergeRule{Left: r.Left, Right: r.Right, Rank: i}
	}

	return &Model{
		rules: owned,
		ranks: rankIndex(owned),
		vocab: vocab,
	}
}

// rankIndex maps each pair to the rank of its first occurrence in rules.
func rankIndex(rules []MergeRule) map[Pair]int {
	ranks := make(map[Pair]int, len(rules))
	for i, r := range rules {
		p := r.Pair()
		if _, seen := ranks[p]; seen {
			continue
		}
		ranks[p] = i
	}

	return ranks
}

// Rules returns a copy of the ordered merge rules.
func (m *Model) Rules() []MergeRule {
	return append([]MergeRule(nil), m.rules...)
}

// Rank returns the merge rank for the pair (left, right).
func (m *Model) Rank(left, right string) (int, bool) {
	r, ok := m.ranks[Pair{Left: left, Right: right}]
	return r, ok
}

// Vocabulary returns the model's vocabulary.
func (m *Model) Vocabulary() Vocabulary {
	return m.vocab
}

// NumMerges returns the number of accepted merge rules.
func (m *Model) NumMerges() int {
	return len(m.rules)
}

// Complete reports whether both merge rules and vocabulary are present.
// Encoding through a Tokenizer is refused for incomplete models.
func (m *Model) Complete() bool {
	return m != nil && len(m.rules) > 0 && m.vocab.Len() > 0
}

// Stats returns the model summary.
func (m *Model) Stats() Stats {
	if m == nil {
		return Stats{}
	}

	return Stats{
		Merges:       len(m.rules),
		VocabSize:    m.vocab.Len(),
		SkippedLines: m.skipped,
		Complete:     m.Complete(),
	}
}
