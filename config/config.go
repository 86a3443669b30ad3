// Package config loads parallax.toml, the configuration shared by the
// parallaxc CLI and batch compiles.
//
// A minimal file:
//
//	[spirv]
//	version = "1.5"
//	strict = true
//
//	[build]
//	jobs = 8
//	cache_dir = ".parallax-cache"
//
// Keys that are not set keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/parallax"
	"github.com/gogpu/parallax/spirv"
)

// FileName is the configuration file Find looks for.
const FileName = "parallax.toml"

// Config is the decoded configuration file.
type Config struct {
	SPIRV  SPIRVConfig  `toml:"spirv"`
	Kernel KernelConfig `toml:"kernel"`
	Build  BuildConfig  `toml:"build"`

	// Path is the file the configuration was loaded from, if any.
	Path string `toml:"-"`
}

// SPIRVConfig is the [spirv] table.
type SPIRVConfig struct {
	Version  string `toml:"version"`
	Debug    bool   `toml:"debug"`
	Validate bool   `toml:"validate"`
	Strict   bool   `toml:"strict"`
}

// KernelConfig is the [kernel] table.
type KernelConfig struct {
	EntryPoint string `toml:"entry_point"`
}

// BuildConfig is the [build] table.
type BuildConfig struct {
	Jobs      int    `toml:"jobs"`
	CacheDir  string `toml:"cache_dir"`
	OutputDir string `toml:"output_dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		SPIRV: SPIRVConfig{
			Version:  spirv.Version1_3.String(),
			Validate: true,
		},
		Kernel: KernelConfig{EntryPoint: spirv.DefaultEntryPoint},
		Build: BuildConfig{
			Jobs:      runtime.NumCPU(),
			OutputDir: ".",
		},
	}
}

// Load reads path over the defaults. Unknown keys are errors.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("kernel", "entry_point") && strings.TrimSpace(cfg.Kernel.EntryPoint) == "" {
		return nil, fmt.Errorf("%s: [kernel].entry_point must not be empty", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Find walks up from startDir looking for parallax.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Validate checks values that TOML typing cannot.
func (c *Config) Validate() error {
	if _, err := spirv.ParseVersion(c.SPIRV.Version); err != nil {
		return fmt.Errorf("[spirv].version: %w", err)
	}
	if c.Build.Jobs < 0 {
		return fmt.Errorf("[build].jobs must not be negative, got %d", c.Build.Jobs)
	}
	if c.Kernel.EntryPoint == "" {
		return errors.New("[kernel].entry_point must not be empty")
	}
	return nil
}

// CompileOptions converts the configuration to compile options.
func (c *Config) CompileOptions() (parallax.CompileOptions, error) {
	v, err := spirv.ParseVersion(c.SPIRV.Version)
	if err != nil {
		return parallax.CompileOptions{}, err
	}
	return parallax.CompileOptions{
		SPIRVVersion: v,
		Debug:        c.SPIRV.Debug,
		Validate:     c.SPIRV.Validate,
		Strict:       c.SPIRV.Strict,
		EntryPoint:   c.Kernel.EntryPoint,
	}, nil
}
