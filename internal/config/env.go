package config

import (
	"sort"
	"strconv"
	"strings"
)

// envSetter applies one environment value.
type envSetter func(c *Config, value string) error

// envMapping maps variable names, without EnvPrefix, to settings.
var envMapping = map[string]envSetter{
	"ENGINE_BUFFER_SIZE":  intSetter(func(c *Config) *int { return &c.Engine.BufferSize }),
	"ENGINE_CONCURRENCY":  intSetter(func(c *Config) *int { return &c.Engine.Concurrency }),
	"ENGINE_EAGER":        boolSetter(func(c *Config) *bool { return &c.Engine.Eager }),
	"ENGINE_AUTO_TRIGGER": boolSetter(func(c *Config) *bool { return &c.Engine.AutoTrigger }),
	"ENGINE_CACHE_TTL":    stringSetter(func(c *Config) *string { return &c.Engine.CacheTTL }),
	"LOG_LEVEL":           stringSetter(func(c *Config) *string { return &c.Log.Level }),
	"LOG_FORMAT":          stringSetter(func(c *Config) *string { return &c.Log.Format }),
	"LOG_FILE":            stringSetter(func(c *Config) *string { return &c.Log.File }),
	"DEMO_PROVIDERS": func(c *Config, v string) error {
		c.Demo.Providers = splitList(v)
		return nil
	},
	"DEMO_DICTIONARY": stringSetter(func(c *Config) *string { return &c.Demo.Dictionary }),
	"DEMO_SCRIPT":     stringSetter(func(c *Config) *string { return &c.Demo.Script }),
	"DEMO_TRACE":      stringSetter(func(c *Config) *string { return &c.Demo.Trace }),
}

// EnvNames returns the supported override variables, sorted.
func EnvNames() []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, EnvPrefix+name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv applies GHOSTLINE_* overrides found through lookup.
// Empty values are treated as set.
func ApplyEnv(c *Config, lookup LookupFunc) error {
	for _, name := range EnvNames() {
		value, ok := lookup(name)
		if !ok {
			continue
		}
		set := envMapping[strings.TrimPrefix(name, EnvPrefix)]
		if err := set(c, value); err != nil {
			return &EnvError{Name: name, Value: value, Err: err}
		}
	}
	return nil
}

func intSetter(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

func stringSetter(field func(*Config) *string) envSetter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
