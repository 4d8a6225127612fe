package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if cfg.Analysis.Root != "." {
		t.Errorf("Analysis.Root = %q, want .", cfg.Analysis.Root)
	}
	if len(cfg.Analysis.EntryPoints) != 2 {
		t.Fatalf("Analysis.EntryPoints = %v, want main and run", cfg.Analysis.EntryPoints)
	}
	if cfg.Analysis.EntryPoints[0].Method != "main" || cfg.Analysis.EntryPoints[1].Method != "run" {
		t.Errorf("Analysis.EntryPoints = %v", cfg.Analysis.EntryPoints)
	}
	if !cfg.Analysis.InlineLambdas {
		t.Error("Analysis.InlineLambdas should be true by default")
	}
	if cfg.Analysis.MaxDepth != locktrace.DefaultMaxDepth {
		t.Errorf("Analysis.MaxDepth = %d, want %d", cfg.Analysis.MaxDepth, locktrace.DefaultMaxDepth)
	}
	if !cfg.Exclude.Gitignore {
		t.Error("Exclude.Gitignore should be true by default")
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be true by default")
	}
	if cfg.Cache.Dir != ".locksmith/cache" {
		t.Errorf("Cache.Dir = %s, want .locksmith/cache", cfg.Cache.Dir)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("Output.Format = %s, want text", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	path := write(t, "locksmith.toml", `
[analysis]
root = "src"
inline_lambdas = false
max_depth = 500

[[analysis.entry_points]]
class = "app.*Handler"
method = "handle"

[exclude]
dirs = ["generated"]

[cache]
enabled = false

[output]
format = "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Analysis.Root != "src" {
		t.Errorf("Analysis.Root = %q, want src", cfg.Analysis.Root)
	}
	if cfg.Analysis.InlineLambdas {
		t.Error("Analysis.InlineLambdas should be false")
	}
	if cfg.Analysis.MaxDepth != 500 {
		t.Errorf("Analysis.MaxDepth = %d, want 500", cfg.Analysis.MaxDepth)
	}
	want := []locktrace.Matcher{{Class: "app.*Handler", Method: "handle"}}
	if len(cfg.Analysis.EntryPoints) != 1 || cfg.Analysis.EntryPoints[0] != want[0] {
		t.Errorf("Analysis.EntryPoints = %v, want %v", cfg.Analysis.EntryPoints, want)
	}
	if len(cfg.Exclude.Dirs) != 1 || cfg.Exclude.Dirs[0] != "generated" {
		t.Errorf("Exclude.Dirs = %v, want [generated]", cfg.Exclude.Dirs)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled should be false")
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Output.Format = %s, want json", cfg.Output.Format)
	}
}

func TestLoadYAML(t *testing.T) {
	path := write(t, "locksmith.yaml", `
analysis:
  workers: 4
output:
  format: markdown
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Analysis.Workers != 4 {
		t.Errorf("Analysis.Workers = %d, want 4", cfg.Analysis.Workers)
	}
	if cfg.Output.Format != "markdown" {
		t.Errorf("Output.Format = %s, want markdown", cfg.Output.Format)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if len(cfg.Analysis.EntryPoints) != 2 {
		t.Errorf("entry points not set in the file should keep defaults, got %v", cfg.Analysis.EntryPoints)
	}
}

func TestLoadJSON(t *testing.T) {
	path := write(t, "locksmith.json", `{
  "analysis": {"max_file_size": 1024},
  "output": {"format": "toon", "color": false}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Analysis.MaxFileSize != 1024 {
		t.Errorf("Analysis.MaxFileSize = %d, want 1024", cfg.Analysis.MaxFileSize)
	}
	if cfg.Output.Format != "toon" || cfg.Output.Color {
		t.Errorf("Output = %+v, want toon without color", cfg.Output)
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/locksmith.toml")
	if err == nil {
		t.Error("Load() should return error for non-existent file")
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := write(t, "locksmith.toml", "[analysis\ninvalid toml")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() should return error for invalid config")
	}
}

func TestLoadConfigSearch(t *testing.T) {
	dir := t.TempDir()

	res, err := LoadConfig(WithSearchDir(dir))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if res.Source != "" {
		t.Errorf("Source = %q, want empty without a config file", res.Source)
	}

	if err := os.MkdirAll(filepath.Join(dir, ".locksmith"), 0o755); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(dir, ".locksmith", "locksmith.toml")
	if err := os.WriteFile(nested, []byte("[analysis]\nmax_depth = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = LoadConfig(WithSearchDir(dir))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if res.Source != nested || res.Config.Analysis.MaxDepth != 7 {
		t.Errorf("LoadConfig() = %s depth %d, want %s depth 7", res.Source, res.Config.Analysis.MaxDepth, nested)
	}

	// The working directory wins over .locksmith/.
	top := filepath.Join(dir, "locksmith.yaml")
	if err := os.WriteFile(top, []byte("analysis:\n  max_depth: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err = LoadConfig(WithSearchDir(dir))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if res.Source != top || res.Config.Analysis.MaxDepth != 9 {
		t.Errorf("LoadConfig() = %s depth %d, want %s depth 9", res.Source, res.Config.Analysis.MaxDepth, top)
	}
}

func TestLoadConfigValidates(t *testing.T) {
	path := write(t, "locksmith.toml", "[output]\nformat = \"xml\"\n")

	_, err := LoadConfig(WithPath(path))
	if err == nil {
		t.Fatal("LoadConfig() should reject an unknown format")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error %T is not a *ValidationError", err)
	}
	if !IsValidationError(err) {
		t.Error("IsValidationError() = false")
	}
}

func TestLoadOrDefault(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)

	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}
	if err := os.WriteFile("locksmith.toml", []byte("[analysis]\nmax_depth = 999\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadOrDefault()
	if cfg.Analysis.MaxDepth != 999 {
		t.Errorf("LoadOrDefault() should load from file, got MaxDepth=%d", cfg.Analysis.MaxDepth)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no entry points", func(c *Config) { c.Analysis.EntryPoints = nil }, "entry_points must not be empty"},
		{"entry without method", func(c *Config) {
			c.Analysis.EntryPoints = []locktrace.Matcher{{Class: "A"}}
		}, "method is required"},
		{"bad glob", func(c *Config) {
			c.Analysis.EntryPoints = []locktrace.Matcher{{Class: "[a", Method: "run"}}
		}, "bad entry point pattern"},
		{"negative depth", func(c *Config) { c.Analysis.MaxDepth = -1 }, "max_depth"},
		{"negative workers", func(c *Config) { c.Analysis.Workers = -2 }, "workers"},
		{"empty pattern", func(c *Config) { c.Exclude.Patterns = []string{" "} }, "exclude.patterns[0]"},
		{"cache without dir", func(c *Config) { c.Cache.Dir = "" }, "cache.dir"},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestShouldExclude(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{".git", true, true},
		{"target/classes/App.java", false, true},
		{"module/build/Gen.java", false, true},
		{"src/main/java/AppTest.java", false, true},
		{"app/src/test/java/Helper.java", false, true},

		{"src/main/java/App.java", false, false},
		{"src/main/java/targets/Pool.java", false, false},
		{"Build.java", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := cfg.ShouldExclude(tt.path, tt.isDir)
			if got != tt.want {
				t.Errorf("ShouldExclude(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestShouldExcludeCustomPatterns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exclude.Patterns = append(cfg.Exclude.Patterns, "*Generated.java", "/legacy/")

	tests := []struct {
		path string
		want bool
	}{
		{"src/ModelGenerated.java", true},
		{"legacy/Old.java", true},
		{"src/legacy/Kept.java", false},
		{"src/Main.java", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := cfg.ShouldExclude(tt.path, false)
			if got != tt.want {
				t.Errorf("ShouldExclude(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
