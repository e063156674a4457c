package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/engine"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRIGSYNC_"

//go:embed schema.cue
var schemaCUE string

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor CUE.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config is the on-disk form of engine.Settings.
type Config struct {
	PoolDepth         int      `yaml:"pool_depth" json:"pool_depth" env:"POOL_DEPTH"`
	InitialPoolDepth  int      `yaml:"initial_pool_depth" json:"initial_pool_depth" env:"INITIAL_POOL_DEPTH"`
	CalibrationWindow int      `yaml:"calibration_window" json:"calibration_window" env:"CALIBRATION_WINDOW"`
	ClockBits         uint     `yaml:"clock_bits" json:"clock_bits" env:"CLOCK_BITS"`
	Tolerance         uint64   `yaml:"tolerance" json:"tolerance" env:"TOLERANCE"`
	FailureThreshold  int      `yaml:"failure_threshold" json:"failure_threshold" env:"FAILURE_THRESHOLD"`
	BatchSize         int      `yaml:"batch_size" json:"batch_size" env:"BATCH_SIZE"`
	RunNumber         int      `yaml:"run_number" json:"run_number" env:"RUN_NUMBER"`
	Require           []string `yaml:"require" json:"require" env:"REQUIRE" envSeparator:","`
}

// Default returns the standard configuration.
func Default() Config {
	d := engine.DefaultSettings()
	return Config{
		PoolDepth:         d.PoolDepth,
		InitialPoolDepth:  d.InitialPoolDepth,
		CalibrationWindow: d.CalibrationWindow,
		ClockBits:         d.ClockBits,
		Tolerance:         d.Tolerance,
		FailureThreshold:  d.FailureThreshold,
		BatchSize:         d.BatchSize,
		RunNumber:         d.RunNumber,
		Require:           []string{},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(&cfg, data, filepath.Ext(path)); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges data into cfg. ext selects the format (".yaml", ".yml" or
// ".cue"). Fields absent from data keep their current value.
func Decode(cfg *Config, data []byte, ext string) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return decodeYAML(cfg, data)
	case ".cue":
		return decodeCUE(cfg, data)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func decodeYAML(cfg *Config, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

func decodeCUE(cfg *Config, data []byte) error {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename("config.cue"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("compile cue: %w", err)
	}

	// Closed schema: unknown fields are rejected like yaml KnownFields.
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	iter, err := v.Fields()
	if err != nil {
		return fmt.Errorf("cue config must be a struct: %w", err)
	}
	for iter.Next() {
		label := iter.Selector().String()
		if !schema.LookupPath(cue.ParsePath(label)).Exists() {
			return fmt.Errorf("field %s not found in config", label)
		}
	}

	if err := v.Decode(cfg); err != nil {
		return fmt.Errorf("decode cue: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with any TRIGSYNC_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate checks cfg against the CUE schema then the driver's own rules.
func (c Config) Validate() error {
	if c.Require == nil {
		c.Require = []string{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	s, err := c.Settings()
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Settings converts c to engine.Settings.
func (c Config) Settings() (engine.Settings, error) {
	req := make([]daq.Category, 0, len(c.Require))
	for _, name := range c.Require {
		cat, err := daq.ParseCategory(name)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("require: %w", err)
		}
		req = append(req, cat)
	}
	return engine.Settings{
		PoolDepth:         c.PoolDepth,
		InitialPoolDepth:  c.InitialPoolDepth,
		CalibrationWindow: c.CalibrationWindow,
		ClockBits:         c.ClockBits,
		Tolerance:         c.Tolerance,
		FailureThreshold:  c.FailureThreshold,
		BatchSize:         c.BatchSize,
		RunNumber:         c.RunNumber,
		Require:           req,
	}, nil
}

// Map returns c in the form accepted by daq.MarshalCanonical, for storing
// alongside a run.
func (c Config) Map() map[string]any {
	req := make([]any, len(c.Require))
	for i, r := range c.Require {
		req[i] = r
	}
	return map[string]any{
		"pool_depth":         int64(c.PoolDepth),
		"initial_pool_depth": int64(c.InitialPoolDepth),
		"calibration_window": int64(c.CalibrationWindow),
		"clock_bits":         int64(c.ClockBits),
		"tolerance":          c.Tolerance,
		"failure_threshold":  int64(c.FailureThreshold),
		"batch_size":         int64(c.BatchSize),
		"run_number":         int64(c.RunNumber),
		"require":            req,
	}
}
