package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-bangla-bpe/internal/model"
)

func newModelVerifyCmd() *cobra.Command {
	var lockPath string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check artifact presence, checksums and model completeness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			a := artifactsFor(cfg)
			expected, err := expectedChecksums(cmd.ErrOrStderr(), lockPath, a)
			if err != nil {
				return err
			}

			report, err := model.Verify(a, model.VerifyOptions{
				Expected: expected,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("model verify failed: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "model verification passed (%d merges, vocab size = %d)\n",
				report.Stats.Merges, report.Stats.VocabSize)

			return nil
		},
	}

	cmd.Flags().StringVar(&lockPath, "lock", "", "Lock manifest with expected checksums (default: "+model.LockManifestName+" next to the merges file, if present)")

	return cmd
}

// expectedChecksums reads the lock manifest at lockPath. With no explicit
// path, a lock next to the merges artifact is used when it exists.
func expectedChecksums(w io.Writer, lockPath string, a model.Artifacts) (map[string]string, error) {
	explicit := lockPath != ""
	if !explicit {
		lockPath = filepath.Join(filepath.Dir(a.MergesPath), model.LockManifestName)
	}

	sums, err := model.LockedChecksums(lockPath)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	_, _ = fmt.Fprintf(w, "using checksums from %s\n", lockPath)

	return sums, nil
}
