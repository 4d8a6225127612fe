// Package analysis runs the deadlock pipeline: scan, extract, link, build
// the call graph, propagate lock traces and detect inverted nestings.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/panbanda/locksmith/internal/cache"
	"github.com/panbanda/locksmith/internal/fileproc"
	"github.com/panbanda/locksmith/internal/progress"
	"github.com/panbanda/locksmith/internal/service/scanner"
	"github.com/panbanda/locksmith/pkg/analyzer/callgraph"
	"github.com/panbanda/locksmith/pkg/analyzer/deadlock"
	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
	"github.com/panbanda/locksmith/pkg/analyzer/resolve"
	"github.com/panbanda/locksmith/pkg/config"
	"github.com/panbanda/locksmith/pkg/frontend/java"
	"github.com/panbanda/locksmith/pkg/model"
	"github.com/panbanda/locksmith/pkg/parser"
)

const tracerName = "locksmith.analysis"

var (
	// ErrNoSources is returned when the scan found no Java files.
	ErrNoSources = errors.New("analysis: no java sources found")
	// ErrNoEntryPoints is returned when no function matched the entry points.
	ErrNoEntryPoints = errors.New("analysis: no entry points matched")
)

// ExtractError reports a file that could not be turned into declarations.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	return "extract " + e.Path + ": " + e.Err.Error()
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Service orchestrates analysis runs.
type Service struct {
	config   *config.Config
	logger   *slog.Logger
	progress io.Writer
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// WithLogger sets the logger passed to every phase.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithProgress draws an extraction progress bar on w.
func WithProgress(w io.Writer) Option {
	return func(s *Service) {
		s.progress = w
	}
}

// New creates a new analysis service.
func New(opts ...Option) *Service {
	s := &Service{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		s.config = config.LoadOrDefault()
	}
	return s
}

// Options select what one run analyzes.
type Options struct {
	// Paths are files or directories; empty means the configured root.
	Paths []string
	// EntryPoints override the configured matchers when non-empty.
	EntryPoints []locktrace.Matcher
	NoCache     bool
	WithTraces  bool
}

// Result is the outcome of one run.
type Result struct {
	Report   *deadlock.Report
	Program  *model.Program
	Trace    *locktrace.Result
	Detector *deadlock.Detector
	Graph    callgraph.Stats
	Resolver resolve.Stats
	// Failed lists files skipped because they could not be read or extracted.
	Failed []*ExtractError
	// Skipped counts files dropped by the size limit.
	Skipped int
}

// Analyze runs the whole pipeline once.
func (s *Service) Analyze(ctx context.Context, opts Options) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.Service.Analyze")
	defer span.End()

	cfg := s.config
	matchers := opts.EntryPoints
	if len(matchers) == 0 {
		matchers = cfg.Analysis.EntryPoints
	}
	if len(matchers) == 0 {
		matchers = locktrace.DefaultEntryPoints()
	}

	scan, err := scanner.New(scanner.WithConfig(cfg)).ScanPaths(opts.Paths)
	if err != nil {
		return nil, err
	}
	if len(scan.Files) == 0 {
		return nil, ErrNoSources
	}
	span.SetAttributes(attribute.Int("files", len(scan.Files)))
	s.logger.Info("sources scanned", slog.Int("files", len(scan.Files)), slog.Int("skipped", scan.Skipped))

	decls, failed, err := s.extract(ctx, scan.Files, opts.NoCache)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	b := model.NewBuilder(model.WithLogger(s.logger))
	b.Add(decls...)
	prog, err := b.Build()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("link program: %w", err)
	}
	span.SetAttributes(
		attribute.Int("classes", len(prog.Classes())),
		attribute.Int("functions", len(prog.Functions())),
	)

	cgb := callgraph.NewBuilder(prog,
		callgraph.WithLogger(s.logger),
		callgraph.WithInlineLambdas(cfg.Analysis.InlineLambdas))
	g, err := cgb.Build(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	entries := locktrace.SelectEntryPoints(prog.Functions(), matchers)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoints, matcherList(matchers))
	}

	trace, err := locktrace.New(g,
		locktrace.WithLogger(s.logger),
		locktrace.WithMaxDepth(cfg.Analysis.MaxDepth),
		locktrace.WithLockNames(prog.Locks.Name)).Run(ctx, entries)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	det, err := deadlock.Detect(ctx, trace.Traces, deadlock.WithLogger(s.logger))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rep := deadlock.NewReport(prog, trace, det, opts.WithTraces)
	rep.Summary.Files = len(decls)
	span.SetAttributes(
		attribute.Int("pairs", rep.Summary.Pairs),
		attribute.Int("deadlocks", rep.Summary.Deadlocks),
	)

	return &Result{
		Report:   rep,
		Program:  prog,
		Trace:    trace,
		Detector: det,
		Graph:    g.Stats(),
		Resolver: cgb.ResolverStats(),
		Failed:   failed,
		Skipped:  scan.Skipped,
	}, nil
}

// extract turns files into declarations in parallel. Files that fail are
// returned separately; only cancellation aborts the run.
func (s *Service) extract(ctx context.Context, files []string, noCache bool) ([]*model.FileDecl, []*ExtractError, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.Service.extract")
	defer span.End()

	c := s.openCache(noCache)
	cwd, _ := os.Getwd()

	var tracker *progress.Tracker
	if s.progress != nil {
		tracker = progress.NewTracker("Parsing", len(files), progress.WithWriter(s.progress))
	}

	results, errs := fileproc.MapFilesIndexed(ctx, files, s.config.Analysis.Workers,
		func(ctx context.Context, psr *parser.Parser, path string) (*model.FileDecl, error) {
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			display := displayPath(cwd, path)
			if decl, ok := c.LoadDecl(path, src); ok {
				decl.Path = display
				return decl, nil
			}

			res, err := psr.Parse(ctx, src, parser.LangJava, display)
			if err != nil {
				return nil, err
			}
			defer res.Close()
			if lines := parser.SyntaxErrors(res.Root()); len(lines) > 0 {
				s.logger.Debug("syntax errors, extracting best effort",
					slog.String("file", display), slog.Any("lines", lines))
			}

			decl, err := java.Extract(res)
			if err != nil {
				return nil, err
			}
			if err := c.StoreDecl(path, src, decl); err != nil {
				s.logger.Debug("cache write failed", slog.String("file", display), slog.Any("error", err))
			}
			return decl, nil
		}, tracker.Tick)

	if err := ctx.Err(); err != nil {
		tracker.FinishError(err)
		return nil, nil, err
	}
	tracker.FinishSuccess()

	var failed []*ExtractError
	if errs != nil {
		for _, pe := range errs.Errors {
			failed = append(failed, &ExtractError{Path: displayPath(cwd, pe.Path), Err: pe.Err})
			s.logger.Warn("file skipped", slog.String("file", pe.Path), slog.Any("error", pe.Err))
		}
	}

	decls := make([]*model.FileDecl, 0, len(results))
	for _, d := range results {
		if d != nil {
			decls = append(decls, d)
		}
	}
	span.SetAttributes(attribute.Int("extracted", len(decls)), attribute.Int("failed", len(failed)))
	return decls, failed, nil
}

func (s *Service) openCache(noCache bool) *cache.Cache {
	cc := s.config.Cache
	if noCache || !cc.Enabled {
		return nil
	}
	c, err := cache.New(cc.Dir, cc.TTL, true)
	if err != nil {
		s.logger.Warn("cache disabled", slog.String("dir", cc.Dir), slog.Any("error", err))
		return nil
	}
	return c
}

// displayPath is path relative to cwd when it lies below it.
func displayPath(cwd, path string) string {
	if cwd == "" {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func matcherList(ms []locktrace.Matcher) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.String()
	}
	return strings.Join(parts, ", ")
}
