// Package scanner finds Java sources under a root, honoring the configured
// excludes and .gitignore files.
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/panbanda/locksmith/pkg/config"
	"github.com/panbanda/locksmith/pkg/parser"
)

// descriptors hold annotations and module directives, never classes.
var descriptors = map[string]bool{
	"package-info.java": true,
	"module-info.java":  true,
}

// Scanner finds source files in a directory. It keeps no state between
// scans and may be shared.
type Scanner struct {
	config *config.Config
}

// NewScanner creates a new file scanner.
func NewScanner(cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scanner{config: cfg}
}

// excludes matches paths relative to one scan root. Repository patterns
// are anchored at the git root, so they get the root's path from there as
// a prefix.
type excludes struct {
	configured gitignore.Matcher
	repo       gitignore.Matcher
	repoPrefix []string
}

func (s *Scanner) excludesFor(root string) excludes {
	var ex excludes
	if patterns := s.config.ExcludePatterns(); len(patterns) > 0 {
		ex.configured = gitignore.NewMatcher(patterns)
	}
	if !s.config.Exclude.Gitignore {
		return ex
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return ex
	}
	gitRoot := findGitRoot(absRoot)
	if gitRoot == "" {
		return ex
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(gitRoot), nil)
	if err != nil || len(patterns) == 0 {
		return ex
	}
	ex.repo = gitignore.NewMatcher(patterns)
	if rel, err := filepath.Rel(gitRoot, absRoot); err == nil && rel != "." {
		ex.repoPrefix = strings.Split(rel, string(filepath.Separator))
	}
	return ex
}

func (ex excludes) match(rel string, isDir bool) bool {
	parts := strings.Split(rel, string(filepath.Separator))
	if ex.configured != nil && ex.configured.Match(parts, isDir) {
		return true
	}
	if ex.repo == nil {
		return false
	}
	full := make([]string, 0, len(ex.repoPrefix)+len(parts))
	full = append(append(full, ex.repoPrefix...), parts...)
	return ex.repo.Match(full, isDir)
}

// findGitRoot walks up from start to the directory holding .git, or "".
func findGitRoot(start string) string {
	for dir := start; ; {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// isSource reports whether path is a Java compilation unit that can
// declare classes.
func isSource(path string) bool {
	return parser.DetectLanguage(path) == parser.LangJava && !descriptors[filepath.Base(path)]
}

// ScanDir recursively scans a directory for Java files in walk order.
// Symlinks that resolve outside the root are skipped, as are unreadable
// entries.
func (s *Scanner) ScanDir(root string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if absRoot, err = filepath.EvalSymlinks(absRoot); err != nil {
		return nil, err
	}
	ex := s.excludesFor(root)

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			return nil
		}

		skip := func() error {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return skip()
			}
		}
		if ex.match(rel, d.IsDir()) {
			return skip()
		}
		if !d.IsDir() && isSource(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// isWithinRoot reports whether path lies inside root. "/root2" is not
// inside "/root".
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// ScanFile reports whether a single file would be analyzed.
func (s *Scanner) ScanFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if s.excludesFor(filepath.Dir(path)).match(filepath.Base(path), false) {
		return false, nil
	}
	return isSource(path), nil
}

// FilterBySize drops files larger than maxSize and returns how many were
// dropped. Files that cannot be stat'ed are dropped too. A non-positive
// maxSize keeps everything.
func FilterBySize(files []string, maxSize int64) ([]string, int) {
	if maxSize <= 0 {
		return files, 0
	}
	kept := make([]string, 0, len(files))
	for _, f := range files {
		if info, err := os.Stat(f); err == nil && info.Size() <= maxSize {
			kept = append(kept, f)
		}
	}
	return kept, len(files) - len(kept)
}
