// Package config loads the application configuration from YAML.
//
// Decoding is strict: unknown keys fail the load instead of being silently
// dropped, so typos surface immediately. Every field has a usable default
// and a missing file yields the default configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML accepts "30s", "5m" and friends.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Remote configures the remote document store connection.
type Remote struct {
	// URL of the document-store API. Empty means run fully offline with
	// the in-process store.
	URL string `yaml:"url"`

	// CallTimeout bounds each individual remote call.
	CallTimeout Duration `yaml:"call_timeout"`

	// PollInterval is the subscription refresh cadence.
	PollInterval Duration `yaml:"poll_interval"`
}

// Sync configures the push engine.
type Sync struct {
	// Parallelism caps concurrent pushes within one run.
	Parallelism int `yaml:"parallelism"`

	// MaxAttempts is the retry budget for permanently rejected rows.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay re-arms a run after one that left failures behind.
	RetryDelay Duration `yaml:"retry_delay"`
}

// Config is the root configuration document.
type Config struct {
	// DBPath locates the local database file.
	DBPath string `yaml:"db_path"`

	// TargetGrade is the default grade target subjects are checked against.
	TargetGrade float64 `yaml:"target_grade"`

	Remote Remote `yaml:"remote"`
	Sync   Sync   `yaml:"sync"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DBPath:      "gradetrack.db",
		TargetGrade: 3.0,
		Remote: Remote{
			CallTimeout:  Duration(10 * time.Second),
			PollInterval: Duration(30 * time.Second),
		},
		Sync: Sync{
			Parallelism: 4,
			MaxAttempts: 5,
			RetryDelay:  Duration(time.Minute),
		},
	}
}

// Load reads the configuration at path, layered over the defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := parse(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	return nil
}

func (c Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.Sync.Parallelism < 0 {
		return fmt.Errorf("sync.parallelism must not be negative")
	}
	if c.Sync.MaxAttempts < 0 {
		return fmt.Errorf("sync.max_attempts must not be negative")
	}
	if c.TargetGrade < 0 {
		return fmt.Errorf("target_grade must not be negative")
	}
	return nil
}
