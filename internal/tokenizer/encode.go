package tokenizer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Strategy selects how a word's merges are applied. Every strategy yields the
// same tokens; they differ only in cost.
type Strategy string

const (
	// StrategyNaive re-scans all adjacent pairs after every merge.
	StrategyNaive Strategy = "naive"
	// StrategyQueue keeps candidate pairs in a priority queue ordered by
	// (rank, position) and only revisits pairs touched by a merge.
	StrategyQueue Strategy = "queue"
)

// ParseStrategy maps a case-insensitive name to a Strategy. An empty name
// selects StrategyNaive.
func ParseStrategy(raw string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return StrategyNaive, nil
	case StrategyNaive, StrategyQueue:
		return s, nil
	default:
		return "", fmt.Errorf("invalid strategy %q (expected %s|%s)", raw, StrategyNaive, StrategyQueue)
	}
}

// Encoding is the flattened result of encoding a text. Tokens and IDs are
// positionally aligned; word boundaries are not retained.
type Encoding struct {
	Tokens []string `json:"tokens"`
	IDs    []int    `json:"ids"`
}

// Display returns the tokens for presentation, see PrettyTokens.
func (e Encoding) Display(hideEndMarker bool) []string {
	return PrettyTokens(e.Tokens, hideEndMarker)
}

// Unknown counts tokens that resolved to UnknownID.
func (e Encoding) Unknown() int {
	n := 0
	for _, id := range e.IDs {
		if id == UnknownID {
			n++
		}
	}

	return n
}

// EncodeWord segments a single word using rules, where each rule's position
// in the slice is its rank. The pair lookup is rebuilt on every call; use
// Model.EncodeWord to reuse it.
func EncodeWord(word string, rules []MergeRule) []string {
	return mergeNaive(splitSymbols(word), rankIndex(rules))
}

// EncodeWord segments a single word with the model's merge rules.
func (m *Model) EncodeWord(word string) []string {
	return m.encodeWord(word, StrategyNaive)
}

func (m *Model) encodeWord(word string, strategy Strategy) []string {
	symbols := splitSymbols(word)
	if strategy == StrategyQueue {
		return mergeQueue(symbols, m.ranks)
	}

	return mergeNaive(symbols, m.ranks)
}

// EncodeText splits text on whitespace, encodes each word in order and
// resolves every token through the vocabulary. Tokens missing from the
// vocabulary get UnknownID. It does not check Model.Complete.
func EncodeText(text string, m *Model) ([]string, []int) {
	enc := m.encode(text, StrategyNaive)
	return enc.Tokens, enc.IDs
}

func (m *Model) encode(text string, strategy Strategy) Encoding {
	enc, _ := m.encodeContext(context.Background(), text, strategy)
	return enc
}

// encodeContext is encode with ctx checked between words. A single word is
// never interrupted.
func (m *Model) encodeContext(ctx context.Context, text string, strategy Strategy) (Encoding, error) {
	tokens := []string{}
	for _, word := range strings.Fields(text) {
		if err := ctx.Err(); err != nil {
			return Encoding{}, err
		}
		tokens = append(tokens, m.encodeWord(word, strategy)...)
	}

	return Encoding{Tokens: tokens, IDs: m.vocab.IDs(tokens)}, nil
}

// PrettyTokens is a display transform. With hideEndMarker set, a trailing
// EndOfWordMarker is cut from every token that ends with it; other tokens
// pass through. The input slice is never modified.
func PrettyTokens(tokens []string, hideEndMarker bool) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if hideEndMarker {
			t = strings.TrimSuffix(t, EndOfWordMarker)
		}
		out[i] = t
	}

	return out
}

// splitSymbols returns the word's code points followed by EndOfWordMarker.
// Bytes that are not valid UTF-8 become one-byte symbols, unchanged.
func splitSymbols(word string) []string {
	symbols := make([]string, 0, utf8.RuneCountInString(word)+1)
	for i := 0; i < len(word); {
		_, size := utf8.DecodeRuneInString(word[i:])
		symbols = append(symbols, word[i:i+size])
		i += size
	}

	return append(symbols, EndOfWordMarker)
}

// mergeNaive applies mergeStep until no rule matches.
func mergeNaive(symbols []string, ranks map[Pair]int) []string {
	for {
		var merged bool
		if symbols, merged = mergeStep(symbols, ranks); !merged {
			return symbols
		}
	}
}

// mergeStep merges the adjacent pair with the lowest rank, shrinking symbols
// by one. On equal rank the leftmost pair wins because only a strictly lower
// rank replaces the current best. It reports false when nothing matched.
func mergeStep(symbols []string, ranks map[Pair]int) ([]string, bool) {
	if len(symbols) < 2 {
		return symbols, false
	}

	best, bestRank := -1, 0
	for i := 0; i < len(symbols)-1; i++ {
		r, ok := ranks[Pair{Left: symbols[i], Right: symbols[i+1]}]
		if !ok {
			continue
		}
		if best == -1 || r < bestRank {
			best, bestRank = i, r
		}
	}

	if best == -1 {
		return symbols, false
	}

	symbols[best] += symbols[best+1]

	return append(symbols[:best+1], symbols[best+2:]...), true
}
