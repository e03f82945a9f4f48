// Package bench provides benchmarking primitives for the banglabpe bench command.
package bench

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/example/go-bangla-bpe/internal/text"
	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and output size of a single encode run.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run
	Duration time.Duration
	Words    int
	Tokens   int
}

// TokensPerSec returns the run's throughput, or 0 for a zero duration.
func (r RunResult) TokensPerSec() float64 {
	return Throughput(r.Tokens, r.Duration)
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	// TokensPerSec is total tokens over total time.
	TokensPerSec float64
}

// ComputeStats calculates min, max and mean over a slice of durations.
// The slice must be non-empty.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Summarize aggregates runs into Stats including overall throughput.
func Summarize(runs []RunResult) Stats {
	durations := make([]time.Duration, len(runs))
	var (
		total  time.Duration
		tokens int
	)
	for i, r := range runs {
		durations[i] = r.Duration
		total += r.Duration
		tokens += r.Tokens
	}
	s := ComputeStats(durations)
	s.TokensPerSec = Throughput(tokens, total)
	return s
}

// Throughput returns tokens / elapsed seconds. Returns 0 if elapsed is zero.
func Throughput(tokens int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(tokens) / elapsed.Seconds()
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// ErrNoRuns is returned by Run when runs is not positive.
var ErrNoRuns = errors.New("runs must be >= 1")

// Run encodes input runs times with tok and records each run. The first run
// is marked cold.
func Run(tok *tokenizer.BPETokenizer, input string, runs int) ([]RunResult, error) {
	if runs < 1 {
		return nil, ErrNoRuns
	}

	words := len(text.Words(input))
	results := make([]RunResult, 0, runs)

	for i := range runs {
		start := time.Now()
		enc, err := tok.Encode(input)
		elapsed := time.Since(start)
		if err != nil {
			return results, fmt.Errorf("run %d: %w", i+1, err)
		}

		results = append(results, RunResult{
			Index:    i,
			Cold:     i == 0,
			Duration: elapsed,
			Words:    words,
			Tokens:   len(enc.Tokens),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// Throughput threshold gate
// ---------------------------------------------------------------------------

// CheckThroughputThreshold returns an error if tokensPerSec < minimum.
// A minimum of 0 disables the gate.
func CheckThroughputThreshold(tokensPerSec, minimum float64) error {
	if minimum <= 0 {
		return nil
	}
	if tokensPerSec < minimum {
		return fmt.Errorf("throughput %.1f tokens/s below minimum %.1f", tokensPerSec, minimum)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Cold", "MS", "Tokens", "Tokens/s"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		table.Append([]string{
			fmt.Sprintf("%d", r.Index+1),
			cold,
			fmtMS(r.Duration),
			fmt.Sprintf("%d", r.Tokens),
			fmt.Sprintf("%.1f", r.TokensPerSec()),
		})
	}

	table.SetFooter([]string{"", "", "min " + fmtMS(stats.Min), "mean " + fmtMS(stats.Mean), fmt.Sprintf("%.1f", stats.TokensPerSec)})
	table.Render()

	fmt.Fprintf(w, "max %s ms\n", fmtMS(stats.Max))
}

func fmtMS(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d.Microseconds())/1000)
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index        int     `json:"index"`
	Cold         bool    `json:"cold"`
	DurationMS   float64 `json:"duration_ms"`
	Words        int     `json:"words"`
	Tokens       int     `json:"tokens"`
	TokensPerSec float64 `json:"tokens_per_sec"`
}

type jsonStats struct {
	MinMS        float64 `json:"min_ms"`
	MeanMS       float64 `json:"mean_ms"`
	MaxMS        float64 `json:"max_ms"`
	TokensPerSec float64 `json:"tokens_per_sec"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:        ms(stats.Min),
			MeanMS:       ms(stats.Mean),
			MaxMS:        ms(stats.Max),
			TokensPerSec: stats.TokensPerSec,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:        r.Index,
			Cold:         r.Cold,
			DurationMS:   ms(r.Duration),
			Words:        r.Words,
			Tokens:       r.Tokens,
			TokensPerSec: r.TokensPerSec(),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
