package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type modelInfo struct {
	MergesPath   string `json:"merges_path"`
	VocabPath    string `json:"vocab_path"`
	Loaded       bool   `json:"loaded"`
	Merges       int    `json:"merges"`
	VocabSize    int    `json:"vocab_size"`
	SkippedLines int    `json:"skipped_lines"`
}

func newModelInfoCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Report merge and vocabulary counts for the configured artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			a := artifactsFor(cfg)
			m, err := a.Load()
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}

			st := m.Stats()
			info := modelInfo{
				MergesPath:   a.MergesPath,
				VocabPath:    a.VocabPath,
				Loaded:       st.Complete,
				Merges:       st.Merges,
				VocabSize:    st.VocabSize,
				SkippedLines: st.SkippedLines,
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			if !info.Loaded {
				_, _ = fmt.Fprintln(out, notLoadedMessage(a))
			} else {
				_, _ = fmt.Fprintf(out, "Loaded model: %d merges, vocab size = %d\n", info.Merges, info.VocabSize)
			}
			_, _ = fmt.Fprintf(out, "merges:  %s\nvocab:   %s\n", a.MergesPath, a.VocabPath)
			if info.SkippedLines > 0 {
				_, _ = fmt.Fprintf(out, "skipped: %d malformed merge line(s)\n", info.SkippedLines)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}
