package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/panbanda/locksmith/internal/output"
	"github.com/panbanda/locksmith/internal/service/analysis"
	"github.com/panbanda/locksmith/pkg/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-run the deadlock analysis whenever a Java file changes",
	Long: `Analyzes the tree once, then watches it and re-analyzes the whole
program after each quiet period following .java changes.

Examples:
  locksmith watch
  locksmith watch src --debounce 2s --entry 'Server#serve'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before re-analysis")
	watchCmd.Flags().StringArrayP("entry", "e", nil, "Entry point as Class#method glob (repeatable)")
	watchCmd.Flags().StringP("format", "f", "", "Output format: text, json, markdown, toon (default from config)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	loaded, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := loaded.Config
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	root := cfg.Analysis.Root
	if len(args) > 0 {
		root = args[0]
	}
	absPath, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	specs, _ := cmd.Flags().GetStringArray("entry")
	entries, err := parseEntries(specs)
	if err != nil {
		return err
	}
	debounce, _ := cmd.Flags().GetDuration("debounce")

	formatter, err := newFormatter(cmd, cfg)
	if err != nil {
		return err
	}
	svc := analysis.New(analysis.WithConfig(cfg), analysis.WithLogger(logger))
	run := func(ctx context.Context) {
		res, err := svc.Analyze(ctx, analysis.Options{Paths: []string{absPath}, EntryPoints: entries})
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				color.New(color.FgRed).Fprintf(cmd.ErrOrStderr(), "Analysis error: %v\n", err)
			}
			return
		}
		if err := formatter.Output(output.NewDeadlockReport(res.Report)); err != nil {
			logger.Error("write report", slog.Any("error", err))
		}
	}

	watcher, err := watch.NewWatcher(absPath, cfg,
		watch.WithDebounce(debounce),
		watch.WithOutput(cmd.OutOrStdout()),
		watch.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Stop()
	watcher.SetCallback(func(ctx context.Context, changed []string) { run(ctx) })

	ctx := cmd.Context()
	run(ctx)
	if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "\nStopping watch...")
	return nil
}
