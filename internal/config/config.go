// Package config provides ghostline configuration: defaults, file loading
// (TOML or YAML), environment overrides, validation and live reload.
package config

import (
	"errors"
	"slices"
	"time"

	"github.com/dshills/ghostline/internal/inline/compute"
	"github.com/dshills/ghostline/internal/logging"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "GHOSTLINE_"

// Provider kinds for the demo host.
const (
	ProviderStatic     = "static"
	ProviderDictionary = "dictionary"
	ProviderScript     = "script"
)

// Config is the complete ghostline configuration.
type Config struct {
	Engine EngineConfig `toml:"engine" yaml:"engine"`
	Log    LogConfig    `toml:"log" yaml:"log"`
	Demo   DemoConfig   `toml:"demo" yaml:"demo"`
}

// EngineConfig configures suggestion computation.
type EngineConfig struct {
	// BufferSize is the capacity of the producer result channel.
	BufferSize int `toml:"buffer_size" yaml:"buffer_size"`

	// Concurrency limits producers computing at the same time. Zero means
	// no limit.
	Concurrency int `toml:"concurrency" yaml:"concurrency"`

	// Eager runs producers to completion instead of on demand.
	Eager bool `toml:"eager" yaml:"eager"`

	// AutoTrigger requests suggestions while typing.
	AutoTrigger bool `toml:"auto_trigger" yaml:"auto_trigger"`

	// CacheTTL keeps provider results for this long. Empty disables caching.
	CacheTTL string `toml:"cache_ttl" yaml:"cache_ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	File   string `toml:"file" yaml:"file"`
}

// DemoConfig configures the providers of the demo host.
type DemoConfig struct {
	// Providers lists provider kinds in priority order.
	Providers []string `toml:"providers" yaml:"providers"`

	// Variants are the static provider's variants.
	Variants [][]string `toml:"variants" yaml:"variants"`

	// Dictionary is a word list file of "word frequency" lines.
	Dictionary string `toml:"dictionary" yaml:"dictionary"`

	// Script is a Lua provider script.
	Script string `toml:"script" yaml:"script"`

	// Trace is a file receiving the msgpack event trace.
	Trace string `toml:"trace" yaml:"trace"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			BufferSize:  compute.DefaultBufferSize,
			Concurrency: 0,
			AutoTrigger: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Demo: DemoConfig{
			Providers: []string{ProviderStatic},
			Variants: [][]string{
				{"Println(", "\"hello\"", ")"},
				{"Printf(", "\"%s\\n\", name", ")"},
				{"Sprintf(", "\"%d\", n", ")"},
			},
		},
	}
}

// TTL returns the parsed cache TTL. Validate guarantees it parses.
func (c *Config) TTL() time.Duration {
	if c.Engine.CacheTTL == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Engine.CacheTTL)
	return d
}

// EngineOptions returns the compute engine options for the configuration.
func (c *Config) EngineOptions() []compute.Option {
	opts := []compute.Option{compute.WithBufferSize(c.Engine.BufferSize)}
	if c.Engine.Concurrency > 0 {
		opts = append(opts, compute.WithConcurrency(c.Engine.Concurrency))
	}
	return opts
}

// LogOptions returns the logging options for the configuration.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:     c.Log.Level,
		Format:    c.Log.Format,
		Timestamp: true,
	}
}

// Validate checks every setting and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(path string, value any, msg string) {
		errs = append(errs, &ValidationError{Path: path, Value: value, Message: msg})
	}

	if c.Engine.BufferSize < 1 {
		bad("engine.buffer_size", c.Engine.BufferSize, "must be at least 1")
	}
	if c.Engine.Concurrency < 0 {
		bad("engine.concurrency", c.Engine.Concurrency, "must not be negative")
	}
	if c.Engine.CacheTTL != "" {
		if d, err := time.ParseDuration(c.Engine.CacheTTL); err != nil || d < 0 {
			bad("engine.cache_ttl", c.Engine.CacheTTL, "must be a non-negative duration")
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error", "fatal"}, c.Log.Level) {
		bad("log.level", c.Log.Level, "must be debug, info, warn, error or fatal")
	}
	if !slices.Contains([]string{"text", "json", "logfmt"}, c.Log.Format) {
		bad("log.format", c.Log.Format, "must be text, json or logfmt")
	}

	if len(c.Demo.Providers) == 0 {
		bad("demo.providers", c.Demo.Providers, "must name at least one provider")
	}
	for _, p := range c.Demo.Providers {
		switch p {
		case ProviderStatic:
		case ProviderDictionary:
			if c.Demo.Dictionary == "" {
				bad("demo.dictionary", c.Demo.Dictionary, "required by the dictionary provider")
			}
		case ProviderScript:
			if c.Demo.Script == "" {
				bad("demo.script", c.Demo.Script, "required by the script provider")
			}
		default:
			bad("demo.providers", p, "unknown provider")
		}
	}

	return errors.Join(errs...)
}
