// Package doctor provides preflight checks of the tokenizer artifacts and
// the model built from them.
package doctor

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/example/go-bangla-bpe/internal/text"
	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// LoadFunc builds a model from artifact paths.
type LoadFunc func(mergesPath, vocabPath string) (*tokenizer.Model, error)

// ProbeFunc checks an external dependency such as a running server.
type ProbeFunc func() error

// Config holds injectable dependencies for each doctor check.
type Config struct {
	MergesPath string
	VocabPath  string
	// Load defaults to tokenizer.Load.
	Load LoadFunc
	// SampleText is encoded once the model loads. Defaults to text.SampleText.
	SampleText string
	// ServerAddr is reported alongside Probe.
	ServerAddr string
	// Probe, when set, checks a running tokenize server.
	Probe ProbeFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
	stats    tokenizer.Stats
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

// Stats returns the loaded model's statistics, zero if loading failed.
func (r *Result) Stats() tokenizer.Stats { return r.stats }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	if cfg.Load == nil {
		cfg.Load = tokenizer.Load
	}
	if cfg.SampleText == "" {
		cfg.SampleText = text.SampleText
	}

	// ---- artifact files ---------------------------------------------------
	for _, a := range []struct{ name, path string }{
		{"merges file", cfg.MergesPath},
		{"vocab file", cfg.VocabPath},
	} {
		fi, err := os.Stat(a.path)
		switch {
		case a.path == "":
			res.fail(a.name + ": path not configured")
			fmt.Fprintf(w, "%s %s: path not configured\n", FailMark, a.name)
		case err != nil:
			res.fail(fmt.Sprintf("%s %q: %v", a.name, a.path, err))
			fmt.Fprintf(w, "%s %s %s: not found\n", FailMark, a.name, a.path)
		case fi.IsDir():
			res.fail(fmt.Sprintf("%s %q: is a directory", a.name, a.path))
			fmt.Fprintf(w, "%s %s %s: is a directory\n", FailMark, a.name, a.path)
		default:
			fmt.Fprintf(w, "%s %s: %s (%d bytes)\n", PassMark, a.name, a.path, fi.Size())
		}
	}

	// ---- model ------------------------------------------------------------
	m, err := cfg.Load(cfg.MergesPath, cfg.VocabPath)
	if err != nil {
		res.fail(fmt.Sprintf("model load: %v", err))
		fmt.Fprintf(w, "%s model load: %v\n", FailMark, err)
	} else {
		res.stats = m.Stats()
		fmt.Fprintf(w, "%s model load: %d merges, vocab size = %d\n", PassMark, res.stats.Merges, res.stats.VocabSize)
		if res.stats.SkippedLines > 0 {
			fmt.Fprintf(w, "  %d malformed merge line(s) skipped\n", res.stats.SkippedLines)
		}

		if !m.Complete() {
			res.fail("model: " + tokenizer.ErrModelNotLoaded.Error())
			fmt.Fprintf(w, "%s model complete: merges or vocabulary missing\n", FailMark)
		} else {
			fmt.Fprintf(w, "%s model complete\n", PassMark)
			checkSample(&res, m, cfg.SampleText, w)
		}
	}

	// ---- server -----------------------------------------------------------
	if cfg.Probe != nil {
		if err := cfg.Probe(); err != nil {
			res.fail(fmt.Sprintf("server %s: %v", cfg.ServerAddr, err))
			fmt.Fprintf(w, "%s server %s: %v\n", FailMark, cfg.ServerAddr, err)
		} else {
			fmt.Fprintf(w, "%s server %s: healthy\n", PassMark, cfg.ServerAddr)
		}
	}

	return res
}

// checkSample encodes sample with both merge strategies; they must agree.
// Unknown tokens are reported but do not fail the check.
func checkSample(res *Result, m *tokenizer.Model, sample string, w io.Writer) {
	naive, err := tokenizer.NewBPETokenizer(m).Encode(sample)
	if err != nil {
		res.fail(fmt.Sprintf("sample encoding: %v", err))
		fmt.Fprintf(w, "%s sample encoding: %v\n", FailMark, err)
		return
	}

	queue, err := tokenizer.NewBPETokenizer(m, tokenizer.WithStrategy(tokenizer.StrategyQueue)).Encode(sample)
	if err != nil || !slices.Equal(naive.Tokens, queue.Tokens) {
		res.fail("sample encoding: merge strategies disagree")
		fmt.Fprintf(w, "%s sample encoding: merge strategies disagree\n", FailMark)
		return
	}

	fmt.Fprintf(w, "%s sample encoding: %d tokens, %d unknown\n", PassMark, len(naive.Tokens), naive.Unknown())
}
