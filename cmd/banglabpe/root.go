package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-bangla-bpe/internal/config"
	"github.com/example/go-bangla-bpe/internal/model"
	"github.com/example/go-bangla-bpe/internal/server"
	"github.com/example/go-bangla-bpe/internal/tokenizer"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "banglabpe",
		Short:         "Bengali BPE tokenizer command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newModelCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Encode.Strategy == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

func artifactsFor(cfg config.Config) model.Artifacts {
	return model.Artifacts{
		MergesPath: cfg.Paths.MergesPath,
		VocabPath:  cfg.Paths.VocabPath,
	}
}

// loadTokenizer loads the configured model and prints its status line to w.
// An incomplete model yields tokenizer.ErrModelNotLoaded.
func loadTokenizer(cfg config.Config, w io.Writer) (*tokenizer.BPETokenizer, error) {
	strategy, err := tokenizer.ParseStrategy(cfg.Encode.Strategy)
	if err != nil {
		return nil, err
	}

	a := artifactsFor(cfg)
	m, err := a.Load()
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	st := m.Stats()
	if !st.Complete {
		_, _ = fmt.Fprintln(w, notLoadedMessage(a))
		return nil, tokenizer.ErrModelNotLoaded
	}
	_, _ = fmt.Fprintf(w, "Loaded model: %d merges, vocab size = %d\n", st.Merges, st.VocabSize)

	return tokenizer.NewBPETokenizer(m,
		tokenizer.WithStrategy(strategy),
		tokenizer.WithWorkers(cfg.Encode.Workers),
	), nil
}

// notLoadedMessage describes an incomplete model. Either artifact may be
// missing or present but empty.
func notLoadedMessage(a model.Artifacts) string {
	return fmt.Sprintf("Model not loaded (merges or vocabulary empty or missing): %s, %s", a.MergesPath, a.VocabPath)
}
