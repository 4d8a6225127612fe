// Package fileproc provides concurrent file processing utilities.
package fileproc

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/locksmith/pkg/parser"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error {
	return e.Err
}

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

func (e *ProcessingErrors) sort() {
	sort.SliceStable(e.Errors, func(i, j int) bool { return e.Errors[i].Path < e.Errors[j].Path })
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x suits the mix of file I/O and cgo parsing.
const DefaultWorkerMultiplier = 2

// Workers resolves a configured worker count; n <= 0 means 2x NumCPU.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU() * DefaultWorkerMultiplier
}

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// MapFilesIndexed runs fn over files on a bounded pool. Each worker reuses
// one parser. results[i] belongs to files[i]; failed or cancelled files
// leave the zero value and are reported in the returned errors, sorted
// by path. The returned *ProcessingErrors is nil when every file succeeded.
func MapFilesIndexed[T any](
	ctx context.Context,
	files []string,
	maxWorkers int,
	fn func(context.Context, *parser.Parser, string) (T, error),
	onProgress ProgressFunc,
) ([]T, *ProcessingErrors) {
	if len(files) == 0 {
		return nil, nil
	}

	maxWorkers = min(Workers(maxWorkers), len(files))
	results := make([]T, len(files))
	errs := &ProcessingErrors{}

	parsers := make(chan *parser.Parser, maxWorkers)
	for range maxWorkers {
		parsers <- parser.New()
	}

	p := pool.New().WithMaxGoroutines(maxWorkers)
	for i, path := range files {
		p.Go(func() {
			if onProgress != nil {
				defer onProgress()
			}
			if err := ctx.Err(); err != nil {
				errs.Add(path, err)
				return
			}

			psr := <-parsers
			defer func() { parsers <- psr }()

			result, err := fn(ctx, psr, path)
			if err != nil {
				errs.Add(path, err)
				return
			}
			results[i] = result
		})
	}
	p.Wait()

	close(parsers)
	for psr := range parsers {
		psr.Close()
	}

	if !errs.HasErrors() {
		return results, nil
	}
	errs.sort()
	return results, errs
}
