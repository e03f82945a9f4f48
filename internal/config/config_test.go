package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their
// defaults and parses args into it.
func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	return &fakeBinder{fs: fs}
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.MergesPath != "bengali_bpe_demo.merges.txt" {
		t.Errorf("MergesPath = %q", cfg.Paths.MergesPath)
	}

	if cfg.Paths.VocabPath != "bengali_bpe_demo.vocab.json" {
		t.Errorf("VocabPath = %q", cfg.Paths.VocabPath)
	}

	if !cfg.Encode.HideEndMarker {
		t.Error("Encode.HideEndMarker = false; want true")
	}

	if cfg.Encode.Strategy != "naive" {
		t.Errorf("Encode.Strategy = %q; want naive", cfg.Encode.Strategy)
	}

	if cfg.Encode.Normalization != "none" {
		t.Errorf("Encode.Normalization = %q; want none", cfg.Encode.Normalization)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}

	if cfg.Server.Workers != 2 {
		t.Errorf("Server.Workers = %d; want 2", cfg.Server.Workers)
	}

	if cfg.Server.MaxTextBytes != 65536 {
		t.Errorf("Server.MaxTextBytes = %d; want 65536", cfg.Server.MaxTextBytes)
	}

	if cfg.Server.RequestTimeout != 30 || cfg.Server.ShutdownTimeout != 30 {
		t.Errorf("timeouts = %d/%d; want 30/30", cfg.Server.RequestTimeout, cfg.Server.ShutdownTimeout)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want info", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	checks := []struct {
		flag string
		want string
	}{
		{"merges", "bengali_bpe_demo.merges.txt"},
		{"vocab", "bengali_bpe_demo.vocab.json"},
		{"hide-end-marker", "true"},
		{"strategy", "naive"},
		{"server-listen-addr", ":8080"},
		{"workers", "2"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}

	// Every bound key must have a registered flag.
	for _, fk := range flagKeys {
		if fs.Lookup(fk.flag) == nil {
			t.Errorf("flagKeys entry %q has no registered flag", fk.flag)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != defaults {
		t.Errorf("Load() = %+v; want defaults %+v", cfg, defaults)
	}
}

func TestLoad_ZeroDefaultsUseDefaultConfig(t *testing.T) {
	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != DefaultConfig() {
		t.Errorf("Load() = %+v; want DefaultConfig()", cfg)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()
	binder := newFlagBinder(t, defaults,
		"--merges=/m/merges.txt",
		"--strategy=QUEUE",
		"--hide-end-marker=false",
		"--workers=8",
		"--log-level=debug",
	)

	cfg, err := Load(LoadOptions{Cmd: binder, Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.MergesPath != "/m/merges.txt" {
		t.Errorf("MergesPath = %q", cfg.Paths.MergesPath)
	}

	if cfg.Encode.Strategy != "queue" {
		t.Errorf("Encode.Strategy = %q; want queue (lower-cased)", cfg.Encode.Strategy)
	}

	if cfg.Encode.HideEndMarker {
		t.Error("Encode.HideEndMarker = true; want false")
	}

	if cfg.Server.Workers != 8 {
		t.Errorf("Server.Workers = %d; want 8", cfg.Server.Workers)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BANGLABPE_LOG_LEVEL", "warn")
	t.Setenv("BANGLABPE_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("BANGLABPE_PATHS_VOCAB_PATH", "/env/vocab.json")
	t.Setenv("BANGLABPE_ENCODE_NORMALIZATION", "nfc")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}

	if cfg.Paths.VocabPath != "/env/vocab.json" {
		t.Errorf("Paths.VocabPath = %q", cfg.Paths.VocabPath)
	}

	if cfg.Encode.Normalization != "nfc" {
		t.Errorf("Encode.Normalization = %q; want nfc", cfg.Encode.Normalization)
	}
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("BANGLABPE_SERVER_WORKERS", "5")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults, "--workers=7"), Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Workers != 7 {
		t.Errorf("Server.Workers = %d; want 7", cfg.Server.Workers)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "banglabpe.yaml")

	content := `
log_level: error
paths:
  merges_path: /models/m.txt
encode:
  strategy: queue
  hide_end_marker: false
server:
  workers: 16
  listen_addr: ":7777"
  watch_model: true
`

	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}

	if cfg.Paths.MergesPath != "/models/m.txt" {
		t.Errorf("MergesPath = %q", cfg.Paths.MergesPath)
	}

	if cfg.Paths.VocabPath != defaults.Paths.VocabPath {
		t.Errorf("VocabPath = %q; want default", cfg.Paths.VocabPath)
	}

	if cfg.Encode.Strategy != "queue" || cfg.Encode.HideEndMarker {
		t.Errorf("Encode = %+v", cfg.Encode)
	}

	if cfg.Server.Workers != 16 || cfg.Server.ListenAddr != ":7777" || !cfg.Server.WatchModel {
		t.Errorf("Server = %+v", cfg.Server)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(LoadOptions{ConfigFile: cfgFile, Defaults: DefaultConfig()})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/banglabpe.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown strategy", []string{"--strategy=fast"}, "Strategy"},
		{"unknown normalization", []string{"--normalization=nfd"}, "Normalization"},
		{"zero workers", []string{"--workers=0"}, "Workers"},
		{"zero max bytes", []string{"--max-text-bytes=0"}, "MaxTextBytes"},
		{"bad log level", []string{"--log-level=verbose"}, "LogLevel"},
		{"empty listen addr", []string{"--server-listen-addr="}, "ListenAddr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaults := DefaultConfig()

			_, err := Load(LoadOptions{Cmd: newFlagBinder(t, defaults, tt.args...), Defaults: defaults})
			if err == nil {
				t.Fatal("Load() = nil; want validation error")
			}

			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_NilCmd(t *testing.T) {
	defaults := DefaultConfig()
	defaults.Server.ListenAddr = ":1234"

	cfg, err := Load(LoadOptions{Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":1234" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":1234")
	}
}
