// Package scanner resolves the paths given on the command line into the
// sorted list of Java sources to analyze.
package scanner

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"

	"github.com/panbanda/locksmith/internal/scanner"
	"github.com/panbanda/locksmith/pkg/config"
)

// ScanResult contains the result of a file scan.
type ScanResult struct {
	// Files are absolute, deduplicated and sorted.
	Files []string
	// Skipped counts files dropped by the size limit.
	Skipped int
	// RepoRoot is the enclosing git worktree of the first path, if any.
	RepoRoot string
}

// Service provides file scanning functionality.
type Service struct {
	config *config.Config
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

// New creates a new scanner service.
func New(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.config == nil {
		s.config = config.LoadOrDefault()
	}
	return s
}

// ScanPaths scans directories and single files. With no paths the
// configured analysis root is scanned.
func (s *Service) ScanPaths(paths []string) (*ScanResult, error) {
	if len(paths) == 0 {
		root := s.config.Analysis.Root
		if root == "" {
			root = "."
		}
		paths = []string{root}
	}

	scan := scanner.NewScanner(s.config)
	seen := make(map[string]bool)
	var files []string

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, &PathError{Path: path, Err: err}
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, &PathError{Path: path, Err: err}
		}

		var found []string
		if info.IsDir() {
			found, err = scan.ScanDir(absPath)
			if err != nil {
				return nil, &ScanError{Path: path, Err: err}
			}
		} else {
			ok, err := scan.ScanFile(absPath)
			if err != nil {
				return nil, &ScanError{Path: path, Err: err}
			}
			if ok {
				found = []string{absPath}
			}
		}
		for _, f := range found {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	sort.Strings(files)

	files, skipped := scanner.FilterBySize(files, s.config.Analysis.MaxFileSize)
	return &ScanResult{
		Files:    files,
		Skipped:  skipped,
		RepoRoot: repoRoot(paths[0]),
	}, nil
}

// repoRoot returns the worktree root of the repository containing path.
func repoRoot(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	wt, err := repo.Worktree()
	if err != nil {
		return ""
	}
	return wt.Filesystem.Root()
}

// PathError indicates an invalid path.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return "invalid path " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// ScanError indicates a scanning failure.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return "failed to scan " + e.Path + ": " + e.Err.Error()
}

func (e *ScanError) Unwrap() error {
	return e.Err
}
