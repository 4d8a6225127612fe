package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"

	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
	"github.com/panbanda/locksmith/pkg/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter locksmith.toml",
	Long: `Writes a locksmith.toml holding the default settings and the entry points
given with --entry. Without --entry the config analyzes every main and run
method, which suits command line tools but rarely a server.

Examples:
  locksmith init                                  # main and run methods
  locksmith init -e 'Worker#run' -e 'Server#serve'
  locksmith init --root src/main/java -o .locksmith/locksmith.toml
  locksmith init --force                          # replace an existing file`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringP("output", "o", "locksmith.toml", "Output file path")
	initCmd.Flags().StringSliceP("entry", "e", nil, "Entry point as Class#method glob (repeatable)")
	initCmd.Flags().String("root", "", "Source root recorded as analysis.root")
	initCmd.Flags().Bool("force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	outputPath, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(outputPath); err == nil && !force {
		return fmt.Errorf("config file %q already exists (use --force to overwrite)", outputPath)
	}

	cfg := config.DefaultConfig()
	specs, _ := cmd.Flags().GetStringSlice("entry")
	if len(specs) > 0 {
		matchers, err := parseEntries(specs)
		if err != nil {
			return err
		}
		cfg.Analysis.EntryPoints = matchers
	}
	if root, _ := cmd.Flags().GetString("root"); root != "" {
		cfg.Analysis.Root = root
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	content, err := renderConfig(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	color.New(color.FgGreen).Fprintf(out, "Created %s\n", outputPath)
	fmt.Fprintf(out, "Entry points: %s\n", joinEntries(cfg.Analysis.EntryPoints))
	return nil
}

// renderConfig marshals cfg to TOML under a header that explains the
// entry point syntax, the part users edit first.
func renderConfig(cfg *config.Config) (string, error) {
	content, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config to TOML: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# Locksmith configuration\n#\n")
	buf.WriteString("# Each [[analysis.entry_points]] names a class and a method glob. Every\n")
	buf.WriteString("# matching method is followed as if it ran on its own thread, so list the\n")
	buf.WriteString("# methods your threads start in: Runnable.run, request handlers, listeners.\n")
	buf.WriteString("# Classes match on their simple or qualified name; \"*\" matches anything.\n")
	buf.WriteString("#\n# Current entry points: " + joinEntries(cfg.Analysis.EntryPoints) + "\n\n")
	buf.Write(content)
	return buf.String(), nil
}

func joinEntries(ms []locktrace.Matcher) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.String()
	}
	return strings.Join(parts, ", ")
}
