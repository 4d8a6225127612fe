package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/panbanda/locksmith/internal/output"
	"github.com/panbanda/locksmith/internal/remote"
	"github.com/panbanda/locksmith/internal/service/analysis"
	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
	"github.com/panbanda/locksmith/pkg/config"
)

// ErrDeadlocksFound is returned by analyze --fail-on-deadlock when a pair
// was reported.
var ErrDeadlocksFound = errors.New("potential deadlocks found")

var analyzeCmd = &cobra.Command{
	Use:     "analyze [path...]",
	Aliases: []string{"a"},
	Short:   "Report lock pairs acquired in opposite orders",
	Long: `Analyzes the Java sources under the given paths (default: the configured
root) starting from every entry point, and reports each pair of locks that
is nested one way on some path and the other way on another.

Examples:
  locksmith analyze
  locksmith analyze src/main/java --entry 'com.acme.*#handle'
  locksmith analyze -f json -o deadlocks.json --fail-on-deadlock
  locksmith analyze apache/kafka@3.7.0 --entry '*#run'`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringArrayP("entry", "e", nil, "Entry point as Class#method glob (repeatable, replaces configured entry points)")
	analyzeCmd.Flags().StringP("format", "f", "", "Output format: text, json, markdown, toon (default from config)")
	analyzeCmd.Flags().StringP("output", "o", "", "Write output to file")
	analyzeCmd.Flags().Bool("no-cache", false, "Disable the declaration cache")
	analyzeCmd.Flags().Bool("show-traces", false, "Include per-function lock traces")
	analyzeCmd.Flags().Bool("fail-on-deadlock", false, "Exit with status 2 when a deadlock is reported")
	analyzeCmd.Flags().Bool("no-progress", false, "Hide the progress bar")
	analyzeCmd.Flags().Bool("full-clone", false, "Clone remote repositories with full history")

	rootCmd.AddCommand(analyzeCmd)
}

// parseEntries converts --entry values into matchers.
func parseEntries(specs []string) ([]locktrace.Matcher, error) {
	var out []locktrace.Matcher
	for _, s := range specs {
		m, err := locktrace.ParseEntryPoint(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// newFormatter writes to --output when set, otherwise to the command's
// stdout.
func newFormatter(cmd *cobra.Command, cfg *config.Config) (*output.Formatter, error) {
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.Output.Format
	}
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		return output.NewFormatter(output.ParseFormat(format), path, false)
	}
	colored := cfg.Output.Color && !color.NoColor
	return output.NewWriterFormatter(output.ParseFormat(format), cmd.OutOrStdout(), colored), nil
}

// resolvePaths clones every remote reference (owner/repo[@ref] or a git
// URL) among args and returns the local paths to analyze. The returned
// cleanup removes the clones.
func resolvePaths(cmd *cobra.Command, args []string) ([]string, func(), error) {
	var clones []*remote.Source
	cleanup := func() {
		for _, src := range clones {
			src.Cleanup()
		}
	}
	fullClone, _ := cmd.Flags().GetBool("full-clone")

	paths := make([]string, 0, len(args))
	for _, arg := range args {
		src, err := remote.Parse(arg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if src == nil {
			paths = append(paths, arg)
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Cloning %s...\n", src.URL)
		if err := src.Clone(cmd.Context(), cmd.ErrOrStderr(), !fullClone); err != nil {
			cleanup()
			return nil, nil, err
		}
		clones = append(clones, src)
		paths = append(paths, src.CloneDir)
	}
	return paths, cleanup, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := loaded.Config
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	specs, _ := cmd.Flags().GetStringArray("entry")
	entries, err := parseEntries(specs)
	if err != nil {
		return err
	}
	noCache, _ := cmd.Flags().GetBool("no-cache")
	showTraces, _ := cmd.Flags().GetBool("show-traces")
	failOnDeadlock, _ := cmd.Flags().GetBool("fail-on-deadlock")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	paths, cleanup, err := resolvePaths(cmd, args)
	if err != nil {
		return err
	}
	defer cleanup()

	formatter, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}
	defer formatter.Close()

	opts := []analysis.Option{analysis.WithConfig(cfg), analysis.WithLogger(logger)}
	if !noProgress {
		opts = append(opts, analysis.WithProgress(cmd.ErrOrStderr()))
	}
	res, err := analysis.New(opts...).Analyze(cmd.Context(), analysis.Options{
		Paths:       paths,
		EntryPoints: entries,
		NoCache:     noCache,
		WithTraces:  showTraces,
	})
	if err != nil {
		return err
	}

	if len(res.Failed) > 0 {
		warn := output.NewWriterFormatter(output.FormatText, cmd.ErrOrStderr(), formatter.Colored())
		warn.Warning("%d file(s) could not be analyzed; first: %v", len(res.Failed), res.Failed[0])
	}

	if err := formatter.Output(output.NewDeadlockReport(res.Report)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if failOnDeadlock && res.Report.HasDeadlocks() {
		return ErrDeadlocksFound
	}
	return nil
}
