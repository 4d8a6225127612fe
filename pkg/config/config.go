// Package config loads locksmith settings from TOML, YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
)

// Config holds all configuration options for locksmith.
type Config struct {
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis" yaml:"analysis"`
	Exclude  ExcludeConfig  `koanf:"exclude" toml:"exclude" yaml:"exclude"`
	Cache    CacheConfig    `koanf:"cache" toml:"cache" yaml:"cache"`
	Output   OutputConfig   `koanf:"output" toml:"output" yaml:"output"`
	Log      LogConfig      `koanf:"log" toml:"log" yaml:"log"`
}

// AnalysisConfig controls what is analyzed and how deep.
type AnalysisConfig struct {
	Root          string              `koanf:"root" toml:"root" yaml:"root"`
	EntryPoints   []locktrace.Matcher `koanf:"entry_points" toml:"entry_points" yaml:"entry_points"`
	InlineLambdas bool                `koanf:"inline_lambdas" toml:"inline_lambdas" yaml:"inline_lambdas"`
	MaxDepth      int                 `koanf:"max_depth" toml:"max_depth" yaml:"max_depth"`
	Workers       int                 `koanf:"workers" toml:"workers" yaml:"workers"` // 0 = 2x NumCPU
	MaxFileSize   int64               `koanf:"max_file_size" toml:"max_file_size" yaml:"max_file_size"`
}

// ExcludeConfig holds gitignore-syntax exclusions.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns" yaml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs" yaml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore" yaml:"gitignore"`
}

// CacheConfig controls caching of per-file declarations.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled" yaml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir" yaml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl" yaml:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format string `koanf:"format" toml:"format" yaml:"format"` // text, json, markdown, toon
	Color  bool   `koanf:"color" toml:"color" yaml:"color"`
}

// LogConfig controls diagnostics on stderr.
type LogConfig struct {
	Level  string `koanf:"level" toml:"level" yaml:"level"`    // debug, info, warn, error
	Format string `koanf:"format" toml:"format" yaml:"format"` // text, json
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Root:          ".",
			EntryPoints:   locktrace.DefaultEntryPoints(),
			InlineLambdas: true,
			MaxDepth:      locktrace.DefaultMaxDepth,
			MaxFileSize:   2 << 20,
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"*Test.java",
				"**/src/test/**",
			},
			Dirs: []string{
				".git",
				".locksmith",
				"target",
				"build",
				"out",
				".gradle",
				".idea",
			},
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".locksmith/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	// A list in the file replaces the default list instead of merging.
	if k.Exists("analysis.entry_points") {
		cfg.Analysis.EntryPoints = nil
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// configNames are searched in order in each of searchDirs.
var configNames = []string{
	"locksmith.toml",
	"locksmith.yaml",
	"locksmith.yml",
	"locksmith.json",
	".locksmith.toml",
	".locksmith.yaml",
	".locksmith.yml",
	".locksmith.json",
}

var searchDirs = []string{".", ".locksmith"}

// LoadResult is a loaded config and the file it came from. Source is
// empty when no file was found.
type LoadResult struct {
	Config *Config
	Source string
}

type loadOptions struct {
	path string
	dir  string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads exactly this file instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

// WithSearchDir searches relative to dir instead of the working directory.
func WithSearchDir(dir string) LoadOption {
	return func(o *loadOptions) { o.dir = dir }
}

// LoadConfig finds, loads and validates the configuration.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	source := o.path
	if source == "" {
		source = find(o.dir)
	}
	if source == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	cfg, err := Load(source)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, Source: source}, nil
}

func find(base string) string {
	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(base, dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault tries the standard locations and falls back to defaults
// when nothing loads.
func LoadOrDefault() *Config {
	res, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return res.Config
}

// ValidationError lists every invalid setting.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

var (
	outputFormats = map[string]bool{"text": true, "json": true, "markdown": true, "md": true, "toon": true}
	logLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats    = map[string]bool{"text": true, "json": true}
)

// Validate checks the config and returns a *ValidationError on failure.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.Analysis.EntryPoints) == 0 {
		add("analysis.entry_points must not be empty")
	}
	for i, m := range c.Analysis.EntryPoints {
		if m.Method == "" {
			add("analysis.entry_points[%d]: method is required", i)
		}
		if err := m.Validate(); err != nil {
			add("analysis.entry_points[%d]: %v", i, err)
		}
	}
	if c.Analysis.MaxDepth < 0 {
		add("analysis.max_depth must not be negative")
	}
	if c.Analysis.Workers < 0 {
		add("analysis.workers must not be negative")
	}
	if c.Analysis.MaxFileSize < 0 {
		add("analysis.max_file_size must not be negative")
	}
	for i, p := range c.Exclude.Patterns {
		if strings.TrimSpace(p) == "" {
			add("exclude.patterns[%d] is empty", i)
		}
	}
	if c.Cache.TTL < 0 {
		add("cache.ttl must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		add("cache.dir is required when the cache is enabled")
	}
	if !outputFormats[strings.ToLower(c.Output.Format)] {
		add("output.format %q is not one of text, json, markdown, toon", c.Output.Format)
	}
	if !logLevels[strings.ToLower(c.Log.Level)] {
		add("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if !logFormats[strings.ToLower(c.Log.Format)] {
		add("log.format %q is not one of text, json", c.Log.Format)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ExcludePatterns compiles the exclude section into gitignore patterns
// rooted at the analysis root. Directories are matched at any depth.
func (c *Config) ExcludePatterns() []gitignore.Pattern {
	var out []gitignore.Pattern
	for _, dir := range c.Exclude.Dirs {
		out = append(out, gitignore.ParsePattern(strings.TrimSuffix(dir, "/")+"/", nil))
	}
	for _, p := range c.Exclude.Patterns {
		out = append(out, gitignore.ParsePattern(p, nil))
	}
	return out
}

// ShouldExclude reports whether a slash-separated path relative to the
// root is excluded by the config alone, ignoring .gitignore files.
func (c *Config) ShouldExclude(path string, isDir bool) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")
	return gitignore.NewMatcher(c.ExcludePatterns()).Match(parts, isDir)
}
