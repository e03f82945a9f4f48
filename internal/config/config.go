package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "BANGLABPE"

type Config struct {
	Paths    PathsConfig  `mapstructure:"paths"`
	Encode   EncodeConfig `mapstructure:"encode"`
	Server   ServerConfig `mapstructure:"server"`
	LogLevel string       `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

type PathsConfig struct {
	MergesPath string `mapstructure:"merges_path"`
	VocabPath  string `mapstructure:"vocab_path"`
}

type EncodeConfig struct {
	HideEndMarker bool   `mapstructure:"hide_end_marker"`
	Strategy      string `mapstructure:"strategy" validate:"oneof=naive queue"`
	Normalization string `mapstructure:"normalization" validate:"oneof=none nfc nfkc"`
	Workers       int    `mapstructure:"workers" validate:"min=1,max=256"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr" validate:"required"`
	Workers         int    `mapstructure:"workers" validate:"min=1,max=256"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes" validate:"min=1"`
	RequestTimeout  int    `mapstructure:"request_timeout" validate:"min=1"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" validate:"min=1"`
	WatchModel      bool   `mapstructure:"watch_model"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			MergesPath: "bengali_bpe_demo.merges.txt",
			VocabPath:  "bengali_bpe_demo.vocab.json",
		},
		Encode: EncodeConfig{
			HideEndMarker: true,
			Strategy:      "naive",
			Normalization: "none",
			Workers:       4,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxTextBytes:    65536,
			RequestTimeout:  30,
			ShutdownTimeout: 30,
			WatchModel:      false,
		},
		LogLevel: "info",
	}
}

// flagKeys maps each persistent flag to the config key it sets.
var flagKeys = []struct {
	flag string
	key  string
}{
	{"merges", "paths.merges_path"},
	{"vocab", "paths.vocab_path"},
	{"hide-end-marker", "encode.hide_end_marker"},
	{"strategy", "encode.strategy"},
	{"normalization", "encode.normalization"},
	{"encode-workers", "encode.workers"},
	{"server-listen-addr", "server.listen_addr"},
	{"workers", "server.workers"},
	{"max-text-bytes", "server.max_text_bytes"},
	{"request-timeout", "server.request_timeout"},
	{"shutdown-timeout", "server.shutdown_timeout"},
	{"watch-model", "server.watch_model"},
	{"log-level", "log_level"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("merges", defaults.Paths.MergesPath, "Path to the merge-rules artifact")
	fs.String("vocab", defaults.Paths.VocabPath, "Path to the vocabulary artifact (JSON)")
	fs.Bool("hide-end-marker", defaults.Encode.HideEndMarker, "Strip the </w> end-of-word marker from displayed tokens")
	fs.String("strategy", defaults.Encode.Strategy, "Merge strategy: naive|queue")
	fs.String("normalization", defaults.Encode.Normalization, "Unicode normalization applied before encoding: none|nfc|nfkc")
	fs.Int("encode-workers", defaults.Encode.Workers, "Parallel workers for multi-text encoding")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Concurrent tokenize requests served")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Bool("watch-model", defaults.Server.WatchModel, "Reload the model when artifact files change")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
}

func Load(opts LoadOptions) (Config, error) {
	if opts.Defaults == (Config{}) {
		opts.Defaults = DefaultConfig()
	}

	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("banglabpe")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks enumerations and numeric bounds.
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Encode.Strategy = strings.ToLower(strings.TrimSpace(c.Encode.Strategy))
	c.Encode.Normalization = strings.ToLower(strings.TrimSpace(c.Encode.Normalization))
	if c.Encode.Strategy == "" {
		c.Encode.Strategy = "naive"
	}
	if c.Encode.Normalization == "" {
		c.Encode.Normalization = "none"
	}
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(fk.key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", fk.flag, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.merges_path", c.Paths.MergesPath)
	v.SetDefault("paths.vocab_path", c.Paths.VocabPath)
	v.SetDefault("encode.hide_end_marker", c.Encode.HideEndMarker)
	v.SetDefault("encode.strategy", c.Encode.Strategy)
	v.SetDefault("encode.normalization", c.Encode.Normalization)
	v.SetDefault("encode.workers", c.Encode.Workers)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.watch_model", c.Server.WatchModel)
	v.SetDefault("log_level", c.LogLevel)
}
