package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-bangla-bpe/internal/bench"
	"github.com/example/go-bangla-bpe/internal/text"
)

func newBenchCmd() *cobra.Command {
	var (
		input           string
		runs            int
		format          string
		minTokensPerSec float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark encoding latency and throughput",
		Long:  "Benchmark encoding latency and throughput. Use --strategy to compare merge strategies.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(input) == "" {
				return fmt.Errorf("--text must not be empty")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			tok, err := loadTokenizer(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			results, err := bench.Run(tok, input, runs)
			if err != nil {
				return err
			}
			stats := bench.Summarize(results)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, cmd.OutOrStdout())
			default:
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "strategy: %s\n", tok.Strategy())
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckThroughputThreshold(stats.TokensPerSec, minTokensPerSec)
		},
	}

	cmd.Flags().StringVar(&input, "text", text.SampleText, "Text to encode for each run")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of encode runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&minTokensPerSec, "min-tokens-per-sec", 0, "Exit non-zero if throughput falls below this value (0 = disabled)")

	return cmd
}
