package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/panbanda/locksmith/pkg/config"
)

var configSections = []string{"analysis", "exclude", "cache", "output", "log"}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and check locksmith configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a configuration file",
	Long: `Loads a locksmith configuration file on top of the defaults and reports
every invalid value, including entry point globs that do not parse.

Examples:
  locksmith config validate                      # Searches the default locations
  locksmith config validate -c locksmith.toml`,
	RunE: runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the defaults merged with the config file, optionally one section only.

Examples:
  locksmith config show                          # Whole config as TOML
  locksmith config show --yaml --section analysis`,
	RunE: runConfigShow,
}

func init() {
	configShowCmd.Flags().Bool("yaml", false, "Print YAML instead of TOML")
	configShowCmd.Flags().String("section", "", "Print one section: "+strings.Join(configSections, ", "))

	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	result, err := loadConfig()
	if err != nil {
		color.New(color.FgRed).Fprintln(out, "Configuration validation failed:")
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
		} else {
			fmt.Fprintf(out, "  - %s\n", err)
		}
		return err
	}

	if result.Source != "" {
		color.New(color.FgGreen).Fprintf(out, "Configuration valid: %s\n", result.Source)
	} else {
		color.New(color.FgYellow).Fprintln(out, "No config file found. Default configuration is valid.")
	}
	fmt.Fprintf(out, "Entry points: %s\n", joinEntries(result.Config.Analysis.EntryPoints))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	section, _ := cmd.Flags().GetString("section")
	if section != "" && !slices.Contains(configSections, section) {
		return fmt.Errorf("unknown section %q (want one of %s)", section, strings.Join(configSections, ", "))
	}
	result, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if result.Source != "" {
		fmt.Fprintf(out, "# Configuration from: %s\n\n", result.Source)
	} else {
		fmt.Fprintln(out, "# Default configuration (no config file found)")
	}

	var v any = result.Config
	if section != "" {
		v = map[string]any{section: sectionOf(result.Config, section)}
	}
	asYAML, _ := cmd.Flags().GetBool("yaml")
	var content []byte
	if asYAML {
		content, err = yaml.Marshal(v)
	} else {
		content, err = toml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(out, string(content))
	return nil
}

func sectionOf(cfg *config.Config, name string) any {
	switch name {
	case "analysis":
		return cfg.Analysis
	case "exclude":
		return cfg.Exclude
	case "cache":
		return cfg.Cache
	case "output":
		return cfg.Output
	default:
		return cfg.Log
	}
}
