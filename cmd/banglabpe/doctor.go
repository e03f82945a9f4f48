package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-bangla-bpe/internal/doctor"
	"github.com/example/go-bangla-bpe/internal/server"
)

func newDoctorCmd() *cobra.Command {
	var (
		probeServer bool
		sampleText  string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local artifact and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "strategy: %s\n", cfg.Encode.Strategy)

			dcfg := doctor.Config{
				MergesPath: cfg.Paths.MergesPath,
				VocabPath:  cfg.Paths.VocabPath,
				SampleText: sampleText,
			}
			if probeServer {
				addr := cfg.Server.ListenAddr
				dcfg.ServerAddr = addr
				dcfg.Probe = func() error { return server.ProbeHTTP(addr) }
			}

			result := doctor.Run(dcfg, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().BoolVar(&probeServer, "probe-server", false, "Also check the server at the configured listen address")
	cmd.Flags().StringVar(&sampleText, "sample", "", "Text encoded by the sample check (default: built-in Bengali sample)")

	return cmd
}
