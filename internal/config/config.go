package config

// Optimizer configuration read from squish.yml. Flags on the command line
// are applied on top of what is read here.

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"squish/internal/optimizer"
)

// DefaultFile is read when no --config flag is given and it exists in the
// working directory.
const DefaultFile = "squish.yml"

type Config struct {
	// Tools switches individual optimizers on or off by name.
	Tools map[string]bool `yaml:"tools"`
	// Paths overrides the executable used for a tool.
	Paths       map[string]string `yaml:"paths"`
	Timeout     time.Duration     `yaml:"timeout"`
	Workers     int               `yaml:"workers"`
	TempDir     string            `yaml:"temp-dir"`
	PreserveICC bool              `yaml:"preserve-icc"`
	Debug       bool              `yaml:"debug"`
}

// Default enables every external optimizer and leaves the in-process
// metadata stripper off.
func Default() Config {
	tools := make(map[string]bool)
	for _, name := range optimizer.ToolNames() {
		tools[name] = name != optimizer.Strip
	}
	return Config{
		Tools:   tools,
		Paths:   map[string]string{},
		Workers: runtime.NumCPU(),
	}
}

// Load reads path over the defaults. An empty path falls back to
// DefaultFile when present, otherwise the defaults are returned as is.
func Load(path string) (Config, error) {
	c := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return c, nil
		}
		path = DefaultFile
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return c, fmt.Errorf("resolve config path: %w", err)
	}
	buf, err := os.ReadFile(absPath)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(buf, &file); err != nil {
		return c, fmt.Errorf("parse config %s: %w", absPath, err)
	}
	c.merge(file)

	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("config %s: %w", absPath, err)
	}

	slog.Debug("Loaded config", "path", absPath, "enabled", c.EnabledNames(), "timeout", c.Timeout, "workers", c.Workers)
	return c, nil
}

// merge overlays the values set in other. Tool switches and paths are merged
// per key so a file only needs to mention what it changes.
func (c *Config) merge(other Config) {
	for name, on := range other.Tools {
		c.Tools[name] = on
	}
	for name, p := range other.Paths {
		c.Paths[name] = p
	}
	if other.Timeout != 0 {
		c.Timeout = other.Timeout
	}
	if other.Workers != 0 {
		c.Workers = other.Workers
	}
	if other.TempDir != "" {
		c.TempDir = other.TempDir
	}
	c.PreserveICC = c.PreserveICC || other.PreserveICC
	c.Debug = c.Debug || other.Debug
}

func (c Config) Validate() error {
	known := make(map[string]bool)
	for _, name := range optimizer.ToolNames() {
		known[name] = true
	}

	var errs []error
	for _, name := range sortedKeys(c.Tools) {
		if !known[name] {
			errs = append(errs, fmt.Errorf("tools: unknown tool %q", name))
		}
	}
	for _, name := range sortedKeys(c.Paths) {
		if !known[name] {
			errs = append(errs, fmt.Errorf("paths: unknown tool %q", name))
		}
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	return errors.Join(errs...)
}

// Only enables exactly the named tools and disables the rest.
func (c *Config) Only(names []string) error {
	known := make(map[string]bool)
	for _, name := range optimizer.ToolNames() {
		known[name] = true
		c.Tools[name] = false
	}
	for _, name := range names {
		if !known[name] {
			return fmt.Errorf("unknown tool %q", name)
		}
		c.Tools[name] = true
	}
	return nil
}

// Enabled returns a copy of the tool switches for an optimization request.
func (c Config) Enabled() map[string]bool {
	out := make(map[string]bool, len(c.Tools))
	for name, on := range c.Tools {
		out[name] = on
	}
	return out
}

// EnabledNames lists switched-on tools in chain order.
func (c Config) EnabledNames() []string {
	var names []string
	for _, name := range optimizer.ToolNames() {
		if c.Tools[name] {
			names = append(names, name)
		}
	}
	return names
}

// Resolver returns the configured executable for a tool, falling back to
// the conventional binary name.
func (c Config) Resolver() optimizer.Resolver {
	paths := make(map[string]string, len(c.Paths))
	for name, p := range c.Paths {
		paths[name] = p
	}
	return func(name string) string {
		if p := paths[name]; p != "" {
			return p
		}
		return optimizer.DefaultResolver(name)
	}
}

// Registry builds the optimizer registry for this configuration.
func (c Config) Registry() optimizer.Registry {
	return optimizer.DefaultRegistry(c.Resolver(), c.PreserveICC)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
