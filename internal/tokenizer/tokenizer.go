// Package tokenizer implements a greedy byte-pair-encoding subword tokenizer
// driven by a precomputed merges list and a token to id vocabulary.
//
// Words are split on whitespace, each word is broken into code points plus an
// end-of-word marker, and adjacent symbols are merged by rule rank until no
// rule applies. Resulting tokens are resolved through the vocabulary, with
// UnknownID standing in for tokens the vocabulary lacks.
package tokenizer

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrModelNotLoaded is returned when encoding is attempted with a model that
// lacks merge rules or a vocabulary.
var ErrModelNotLoaded = errors.New("model not loaded")

// Tokenizer encodes text into aligned subword tokens and ids.
type Tokenizer interface {
	// Encode tokenizes text. Whitespace-only text yields an empty Encoding.
	Encode(text string) (Encoding, error)
}

// BPETokenizer implements Tokenizer over an immutable Model.
type BPETokenizer struct {
	model    *Model
	strategy Strategy
	workers  int
}

// Option configures a BPETokenizer.
type Option func(*BPETokenizer)

// WithStrategy selects the merge strategy. Unknown values fall back to
// StrategyNaive.
func WithStrategy(s Strategy) Option {
	return func(t *BPETokenizer) {
		if s == StrategyQueue {
			t.strategy = StrategyQueue
			return
		}
		t.strategy = StrategyNaive
	}
}

// WithWorkers bounds how many texts EncodeBatch encodes concurrently.
// Zero or less means no bound.
func WithWorkers(n int) Option {
	return func(t *BPETokenizer) { t.workers = n }
}

// NewBPETokenizer returns a tokenizer bound to m.
func NewBPETokenizer(m *Model, opts ...Option) *BPETokenizer {
	t := &BPETokenizer{model: m, strategy: StrategyNaive}
	for _, fn := range opts {
		fn(t)
	}

	return t
}

// Model returns the model the tokenizer encodes with.
func (t *BPETokenizer) Model() *Model {
	return t.model
}

// Strategy returns the configured merge strategy.
func (t *BPETokenizer) Strategy() Strategy {
	return t.strategy
}

// Encode implements Tokenizer.
func (t *BPETokenizer) Encode(text string) (Encoding, error) {
	if !t.model.Complete() {
		return Encoding{}, ErrModelNotLoaded
	}

	return t.model.encode(text, t.strategy), nil
}

// EncodeBatch encodes independent texts concurrently and returns results in
// input order. It stops at the next word boundary when ctx is cancelled.
func (t *BPETokenizer) EncodeBatch(ctx context.Context, texts []string) ([]Encoding, error) {
	if !t.model.Complete() {
		return nil, ErrModelNotLoaded
	}

	out := make([]Encoding, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	if t.workers > 0 {
		g.SetLimit(t.workers)
	}

	for i, text := range texts {
		g.Go(func() error {
			enc, err := t.model.encodeContext(ctx, text, t.strategy)
			if err != nil {
				return err
			}
			out[i] = enc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
