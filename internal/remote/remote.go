// Package remote resolves repository references given in place of a local
// path and clones them into a temporary directory for analysis.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Source represents a remote repository to analyze.
type Source struct {
	URL      string // normalized git URL
	Ref      string // branch, tag, or SHA (empty = default branch)
	CloneDir string // temp directory after clone
}

// Parse detects if a path is a remote reference.
// Returns nil if path exists on filesystem (local path takes precedence).
func Parse(path string) (*Source, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, nil
	}

	ref := ""
	if idx := strings.LastIndex(path, "@"); idx != -1 {
		if tail := path[idx+1:]; !strings.ContainsAny(tail, "/:") {
			if tail == "" {
				return nil, fmt.Errorf("remote: empty ref in %q", path)
			}
			ref = tail
			path = path[:idx]
		}
	}

	switch {
	case strings.HasPrefix(path, "https://"),
		strings.HasPrefix(path, "http://"),
		strings.HasPrefix(path, "ssh://"),
		strings.HasPrefix(path, "git@"):
		return &Source{URL: path, Ref: ref}, nil
	case isHostPath(path):
		return &Source{URL: "https://" + path, Ref: ref}, nil
	case isGitHubShorthand(path):
		return &Source{URL: "https://github.com/" + path, Ref: ref}, nil
	}
	return nil, nil
}

// isHostPath matches host.tld/owner/repo.
func isHostPath(path string) bool {
	parts := strings.Split(path, "/")
	if len(parts) < 3 || strings.HasPrefix(parts[0], ".") || !strings.Contains(parts[0], ".") {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// isGitHubShorthand returns true if path matches owner/repo pattern.
func isGitHubShorthand(path string) bool {
	slashIdx := strings.Index(path, "/")
	if slashIdx == -1 || strings.Count(path, "/") != 1 {
		return false
	}
	// No dots before the slash (would indicate a domain)
	if strings.Contains(path[:slashIdx], ".") {
		return false
	}
	return slashIdx > 0 && slashIdx < len(path)-1
}

// Clone fetches the repository into a fresh temporary directory and sets
// CloneDir. A Ref is tried as a branch, then as a tag, then as a revision
// checked out from a full clone.
func (s *Source) Clone(ctx context.Context, progress io.Writer, shallow bool) error {
	base := &git.CloneOptions{URL: s.URL, Progress: progress}
	if shallow {
		base.Depth = 1
	}

	if s.Ref == "" {
		_, err := s.cloneInto(ctx, base)
		return err
	}

	for _, name := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(s.Ref),
		plumbing.NewTagReferenceName(s.Ref),
	} {
		opts := *base
		opts.ReferenceName = name
		opts.SingleBranch = true
		if _, err := s.cloneInto(ctx, &opts); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	repo, err := s.cloneInto(ctx, &git.CloneOptions{URL: s.URL, Progress: progress})
	if err != nil {
		return err
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(s.Ref))
	if err != nil {
		s.Cleanup()
		return fmt.Errorf("remote: resolve %q in %s: %w", s.Ref, s.URL, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		s.Cleanup()
		return fmt.Errorf("remote: worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
		s.Cleanup()
		return fmt.Errorf("remote: checkout %s: %w", s.Ref, err)
	}
	return nil
}

func (s *Source) cloneInto(ctx context.Context, opts *git.CloneOptions) (*git.Repository, error) {
	s.Cleanup()
	dir, err := os.MkdirTemp("", "locksmith-clone-*")
	if err != nil {
		return nil, fmt.Errorf("remote: temp dir: %w", err)
	}
	s.CloneDir = dir

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil {
		s.Cleanup()
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("remote: clone %s: %w", s.URL, err)
	}
	return repo, nil
}

// Cleanup removes the clone directory, if any.
func (s *Source) Cleanup() {
	if s.CloneDir == "" {
		return
	}
	os.RemoveAll(s.CloneDir)
	s.CloneDir = ""
}
