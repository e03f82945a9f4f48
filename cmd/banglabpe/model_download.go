package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-bangla-bpe/internal/model"
)

func newModelDownloadCmd() *cobra.Command {
	var opts model.DownloadOptions

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download tokenizer artifacts from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Repo == "" {
				return errors.New("--hf-repo is required")
			}
			if opts.HFToken == "" {
				opts.HFToken = os.Getenv("HF_TOKEN")
			}
			opts.Stdout = cmd.OutOrStdout()

			err := model.Download(cmd.Context(), opts)

			var denied *model.AccessDeniedError
			if errors.As(err, &denied) && opts.HFToken == "" {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "hint: gated or private repo; pass --hf-token or set HF_TOKEN")
			}
			if err != nil {
				return fmt.Errorf("model download failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Repo, "hf-repo", "", "Hugging Face repository (owner/name)")
	cmd.Flags().StringVar(&opts.RepoType, "repo-type", model.RepoTypeModel, "Repository type: model|dataset|space")
	cmd.Flags().StringVar(&opts.Revision, "revision", model.DefaultRevision, "Branch, tag or commit to download")
	cmd.Flags().StringSliceVar(&opts.Files, "file", nil, "Artifact file names (default: "+model.DefaultMergesFile+","+model.DefaultVocabFile+")")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", ".", "Directory where artifacts are stored")
	cmd.Flags().StringVar(&opts.HFToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", model.DefaultHFEndpoint, "Hugging Face hub endpoint")

	return cmd
}
