package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Malformed value policies. All of them zero-fill; they differ in how loudly.
const (
	PolicyZero = "zero"
	PolicyWarn = "warn"
	PolicyFail = "fail"
)

type Sources struct {
	GoogleAds string `yaml:"google_ads"`
	TW        string `yaml:"tw"`
	NB        string `yaml:"nb"`
	Polar     string `yaml:"polar"`
}

type Sink struct {
	Driver string `yaml:"driver"` // sqlite | postgres; empty disables persistence
	DSN    string `yaml:"dsn"`
}

type Config struct {
	Sources     Sources
	Output      string
	IDMinLen    int
	IDMaxLen    int
	Malformed   string
	Sink        Sink
	Port        string
	HTTPTimeout time.Duration
	LogLevel    slog.Level
}

// fileConfig mirrors Config on disk; zero values mean "keep the default".
type fileConfig struct {
	Sources     Sources `yaml:"sources"`
	Output      string  `yaml:"output"`
	IDMinLen    int     `yaml:"id_min_len"`
	IDMaxLen    int     `yaml:"id_max_len"`
	Malformed   string  `yaml:"malformed"`
	Sink        Sink    `yaml:"sink"`
	Port        string  `yaml:"port"`
	HTTPTimeout int     `yaml:"http_timeout_seconds"`
	LogLevel    string  `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Sources: Sources{
			GoogleAds: "google_ads.csv",
			TW:        "TW_data.csv",
			NB:        "NB_data.csv",
			Polar:     "Polar_data.csv",
		},
		Output:      "merged_performance_data.csv",
		IDMinLen:    6,
		IDMaxLen:    20,
		Malformed:   PolicyZero,
		Port:        "8080",
		HTTPTimeout: 15 * time.Second,
		LogLevel:    slog.LevelInfo,
	}
}

func FromEnv() Config {
	cfg := Default()
	applyEnv(&cfg)
	return cfg
}

// Load layers defaults, the optional YAML file at path and the environment,
// in that order, then validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply further
// overrides (command-line flags) before validating once.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		fc.apply(&cfg)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) {
	setStr(&cfg.Sources.GoogleAds, fc.Sources.GoogleAds)
	setStr(&cfg.Sources.TW, fc.Sources.TW)
	setStr(&cfg.Sources.NB, fc.Sources.NB)
	setStr(&cfg.Sources.Polar, fc.Sources.Polar)
	setStr(&cfg.Output, fc.Output)
	setStr(&cfg.Malformed, fc.Malformed)
	setStr(&cfg.Sink.Driver, fc.Sink.Driver)
	setStr(&cfg.Sink.DSN, fc.Sink.DSN)
	setStr(&cfg.Port, fc.Port)
	if fc.IDMinLen > 0 {
		cfg.IDMinLen = fc.IDMinLen
	}
	if fc.IDMaxLen > 0 {
		cfg.IDMaxLen = fc.IDMaxLen
	}
	if fc.HTTPTimeout > 0 {
		cfg.HTTPTimeout = time.Duration(fc.HTTPTimeout) * time.Second
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLevel(fc.LogLevel, cfg.LogLevel)
	}
}

func applyEnv(cfg *Config) {
	cfg.Sources.GoogleAds = envOr("GOOGLE_ADS_CSV", cfg.Sources.GoogleAds)
	cfg.Sources.TW = envOr("TW_CSV", cfg.Sources.TW)
	cfg.Sources.NB = envOr("NB_CSV", cfg.Sources.NB)
	cfg.Sources.Polar = envOr("POLAR_CSV", cfg.Sources.Polar)
	cfg.Output = envOr("OUTPUT_CSV", cfg.Output)
	cfg.Malformed = envOr("MALFORMED_POLICY", cfg.Malformed)
	cfg.Sink.Driver = envOr("SINK_DRIVER", cfg.Sink.Driver)
	cfg.Sink.DSN = envOr("SINK_DSN", cfg.Sink.DSN)
	cfg.Port = envOr("PORT", cfg.Port)
	cfg.IDMinLen = envInt("ID_MIN_LEN", cfg.IDMinLen)
	cfg.IDMaxLen = envInt("ID_MAX_LEN", cfg.IDMaxLen)
	if v := os.Getenv("HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			cfg.HTTPTimeout = d
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLevel(v, cfg.LogLevel)
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.IDMinLen < 0 || c.IDMaxLen < c.IDMinLen {
		errs = append(errs, fmt.Errorf("invalid id length bounds [%d, %d]", c.IDMinLen, c.IDMaxLen))
	}
	switch c.Malformed {
	case PolicyZero, PolicyWarn, PolicyFail:
	default:
		errs = append(errs, fmt.Errorf("unknown malformed policy %q", c.Malformed))
	}
	switch c.Sink.Driver {
	case "":
	case "sqlite", "postgres":
		if c.Sink.DSN == "" {
			errs = append(errs, fmt.Errorf("sink %s requires a dsn", c.Sink.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sink driver %q", c.Sink.Driver))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output path is empty"))
	}
	return errors.Join(errs...)
}

func parseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return def
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	v, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return v
}
