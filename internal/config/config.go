package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Server    ServerConfig    `mapstructure:"server"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Synth     SynthConfig     `mapstructure:"synth"`
	Align     AlignConfig     `mapstructure:"align"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	MaxScriptBytes  int    `mapstructure:"max_script_bytes"`
	Workers         int    `mapstructure:"workers"`
}

type PathsConfig struct {
	DataDir          string `mapstructure:"data_dir"`
	JobsDirname      string `mapstructure:"jobs_dirname"`
	CacheDirname     string `mapstructure:"cache_dirname"`
	VoicesPath       string `mapstructure:"voices_path"`
	InstructionsPath string `mapstructure:"instructions_path"`
}

type SynthConfig struct {
	Model           string `mapstructure:"model"`
	APIKey          string `mapstructure:"api_key"`
	Endpoint        string `mapstructure:"endpoint"`
	Chunked         bool   `mapstructure:"chunked"`
	LinesPerChunk   int    `mapstructure:"lines_per_chunk"`
	Concurrency     int    `mapstructure:"concurrency"`
	SilenceMs       int    `mapstructure:"silence_ms"`
	UseInstructions bool   `mapstructure:"use_instructions"`
}

type AlignConfig struct {
	Model       string `mapstructure:"model"`
	Endpoint    string `mapstructure:"endpoint"`
	Device      string `mapstructure:"device"`
	ComputeType string `mapstructure:"compute_type"`
}

type NormalizeConfig struct {
	DialectRewrite bool `mapstructure:"dialect_rewrite"`
}

// JobsDir returns the per-job storage root under the data directory.
func (c Config) JobsDir() string {
	return filepath.Join(c.Paths.DataDir, c.Paths.JobsDirname)
}

// CacheDir returns the artifact-cache root under the data directory.
func (c Config) CacheDir() string {
	return filepath.Join(c.Paths.DataDir, c.Paths.CacheDirname)
}

// EnsureDirs creates the data, jobs, and cache directories if missing.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.Paths.DataDir, c.JobsDir(), c.CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
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
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:      ":8000",
			ShutdownTimeout: 30,
			RequestTimeout:  900,
			MaxScriptBytes:  120000,
			Workers:         4,
		},
		Paths: PathsConfig{
			DataDir:          "./data",
			JobsDirname:      "jobs",
			CacheDirname:     "cache",
			VoicesPath:       "config/voices.yml",
			InstructionsPath: "config/instructions.txt",
		},
		Synth: SynthConfig{
			Model:           "gemini-2.5-flash-preview-tts",
			APIKey:          "",
			Endpoint:        "https://generativelanguage.googleapis.com/v1beta",
			Chunked:         false,
			LinesPerChunk:   30,
			Concurrency:     5,
			SilenceMs:       150,
			UseInstructions: false,
		},
		Align: AlignConfig{
			Model:       "tiny.en",
			Endpoint:    "http://127.0.0.1:8001",
			Device:      "auto",
			ComputeType: "int8",
		},
		Normalize: NormalizeConfig{
			DialectRewrite: false,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-call timeout for external synthesis/transcription in seconds")
	fs.Int("server-max-script-bytes", defaults.Server.MaxScriptBytes, "Maximum accepted script size in bytes")
	fs.Int("server-workers", defaults.Server.Workers, "Max jobs running concurrently")
	fs.String("paths-data-dir", defaults.Paths.DataDir, "Root directory for job and cache storage")
	fs.String("paths-voices-path", defaults.Paths.VoicesPath, "Path to the voice registry YAML file")
	fs.String("paths-instructions-path", defaults.Paths.InstructionsPath, "Path to the synthesis instruction preamble")
	fs.String("synth-model", defaults.Synth.Model, "TTS model identifier")
	fs.String("synth-endpoint", defaults.Synth.Endpoint, "Base URL of the TTS API")
	fs.Bool("synth-chunked", defaults.Synth.Chunked, "Split long scripts into concurrently synthesized chunks")
	fs.Int("synth-lines-per-chunk", defaults.Synth.LinesPerChunk, "Target script lines per synthesis chunk")
	fs.Int("synth-concurrency", defaults.Synth.Concurrency, "Max concurrent chunk synthesis calls")
	fs.Int("synth-silence-ms", defaults.Synth.SilenceMs, "Silence inserted between merged chunks in milliseconds")
	fs.Bool("synth-use-instructions", defaults.Synth.UseInstructions, "Prepend the instruction preamble to synthesis payloads")
	fs.String("align-model", defaults.Align.Model, "Speech recognition model identifier")
	fs.String("align-endpoint", defaults.Align.Endpoint, "Base URL of the transcription service")
	fs.String("align-device", defaults.Align.Device, "Transcription device hint (cpu|cuda|auto)")
	fs.String("align-compute-type", defaults.Align.ComputeType, "Transcription precision hint (int8|float16)")
	fs.Bool("normalize-dialect-rewrite", defaults.Normalize.DialectRewrite, "Rewrite narrator dialect spellings before synthesis")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("TTSREADER")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("synth.api_key", "TTSREADER_SYNTH_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("ttsreader")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.max_script_bytes", c.Server.MaxScriptBytes)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("paths.data_dir", c.Paths.DataDir)
	v.SetDefault("paths.jobs_dirname", c.Paths.JobsDirname)
	v.SetDefault("paths.cache_dirname", c.Paths.CacheDirname)
	v.SetDefault("paths.voices_path", c.Paths.VoicesPath)
	v.SetDefault("paths.instructions_path", c.Paths.InstructionsPath)
	v.SetDefault("synth.model", c.Synth.Model)
	v.SetDefault("synth.api_key", c.Synth.APIKey)
	v.SetDefault("synth.endpoint", c.Synth.Endpoint)
	v.SetDefault("synth.chunked", c.Synth.Chunked)
	v.SetDefault("synth.lines_per_chunk", c.Synth.LinesPerChunk)
	v.SetDefault("synth.concurrency", c.Synth.Concurrency)
	v.SetDefault("synth.silence_ms", c.Synth.SilenceMs)
	v.SetDefault("synth.use_instructions", c.Synth.UseInstructions)
	v.SetDefault("align.model", c.Align.Model)
	v.SetDefault("align.endpoint", c.Align.Endpoint)
	v.SetDefault("align.device", c.Align.Device)
	v.SetDefault("align.compute_type", c.Align.ComputeType)
	v.SetDefault("normalize.dialect_rewrite", c.Normalize.DialectRewrite)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("log_level", "log-level")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("server.request_timeout", "server-request-timeout")
	v.RegisterAlias("server.max_script_bytes", "server-max-script-bytes")
	v.RegisterAlias("server.workers", "server-workers")
	v.RegisterAlias("paths.data_dir", "paths-data-dir")
	v.RegisterAlias("paths.voices_path", "paths-voices-path")
	v.RegisterAlias("paths.instructions_path", "paths-instructions-path")
	v.RegisterAlias("synth.model", "synth-model")
	v.RegisterAlias("synth.endpoint", "synth-endpoint")
	v.RegisterAlias("synth.chunked", "synth-chunked")
	v.RegisterAlias("synth.lines_per_chunk", "synth-lines-per-chunk")
	v.RegisterAlias("synth.concurrency", "synth-concurrency")
	v.RegisterAlias("synth.silence_ms", "synth-silence-ms")
	v.RegisterAlias("synth.use_instructions", "synth-use-instructions")
	v.RegisterAlias("align.model", "align-model")
	v.RegisterAlias("align.endpoint", "align-endpoint")
	v.RegisterAlias("align.device", "align-device")
	v.RegisterAlias("align.compute_type", "align-compute-type")
	v.RegisterAlias("normalize.dialect_rewrite", "normalize-dialect-rewrite")
}
