package fileproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/panbanda/locksmith/pkg/parser"
)

func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	return path
}

func TestMapFilesIndexed(t *testing.T) {
	tmpDir := t.TempDir()
	files := make([]string, 50)
	for i := range files {
		files[i] = createTestFile(t, tmpDir, fmt.Sprintf("File%d.java", i), fmt.Sprintf("class File%d {}", i))
	}

	results, errs := MapFilesIndexed(context.Background(), files, 4,
		func(ctx context.Context, p *parser.Parser, path string) (string, error) {
			res, err := p.ParseFile(ctx, path)
			if err != nil {
				return "", err
			}
			defer res.Close()
			return res.Root().Type(), nil
		}, nil)

	if errs != nil {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	if len(results) != len(files) {
		t.Fatalf("Expected %d results, got %d", len(files), len(results))
	}
	for i, r := range results {
		if r != "program" {
			t.Errorf("Result[%d] = %q, want program", i, r)
		}
	}
}

func TestMapFilesIndexed_PreservesOrder(t *testing.T) {
	files := make([]string, 100)
	for i := range files {
		files[i] = fmt.Sprintf("F%03d.java", i)
	}

	results, errs := MapFilesIndexed(context.Background(), files, 0,
		func(_ context.Context, _ *parser.Parser, path string) (string, error) {
			return path, nil
		}, nil)

	if errs != nil {
		t.Fatalf("Unexpected errors: %v", errs)
	}
	for i, r := range results {
		if r != files[i] {
			t.Errorf("Result[%d] = %q, want %q", i, r, files[i])
		}
	}
}

func TestMapFilesIndexed_WithErrors(t *testing.T) {
	files := []string{"c.java", "a.java", "b.java", "d.java"}
	boom := errors.New("boom")

	results, errs := MapFilesIndexed(context.Background(), files, 2,
		func(_ context.Context, _ *parser.Parser, path string) (*string, error) {
			if path == "a.java" || path == "d.java" {
				return nil, boom
			}
			return &path, nil
		}, nil)

	if !errs.HasErrors() {
		t.Fatal("Expected errors")
	}
	if len(errs.Errors) != 2 || errs.Errors[0].Path != "a.java" || errs.Errors[1].Path != "d.java" {
		t.Errorf("Errors = %v, want a.java then d.java", errs.Errors)
	}
	if !errors.Is(errs.Errors[0], boom) {
		t.Error("ProcessingError should unwrap to the cause")
	}
	if results[0] == nil || *results[0] != "c.java" || results[1] != nil || results[2] == nil || results[3] != nil {
		t.Errorf("results = %v, want failures left nil in place", results)
	}
}

func TestMapFilesIndexed_Empty(t *testing.T) {
	results, errs := MapFilesIndexed(context.Background(), nil, 0,
		func(context.Context, *parser.Parser, string) (int, error) { return 1, nil }, nil)
	if results != nil || errs != nil {
		t.Errorf("MapFilesIndexed(nil) = %v, %v; want nil, nil", results, errs)
	}
}

func TestMapFilesIndexed_Progress(t *testing.T) {
	files := []string{"a", "b", "c", "d", "e"}
	var ticks atomic.Int32

	_, errs := MapFilesIndexed(context.Background(), files, 2,
		func(_ context.Context, _ *parser.Parser, path string) (string, error) {
			if path == "c" {
				return "", errors.New("fail")
			}
			return path, nil
		}, func() { ticks.Add(1) })

	if errs == nil || len(errs.Errors) != 1 {
		t.Fatalf("Expected one error, got %v", errs)
	}
	if n := ticks.Load(); n != int32(len(files)) {
		t.Errorf("progress ticks = %d, want %d (failures tick too)", n, len(files))
	}
}

func TestMapFilesIndexed_BoundedWorkers(t *testing.T) {
	files := make([]string, 40)
	for i := range files {
		files[i] = fmt.Sprint(i)
	}
	var active, peak int32
	var mu sync.Mutex

	MapFilesIndexed(context.Background(), files, 3,
		func(context.Context, *parser.Parser, string) (int, error) {
			n := atomic.AddInt32(&active, 1)
			mu.Lock()
			peak = max(peak, n)
			mu.Unlock()
			defer atomic.AddInt32(&active, -1)
			return 0, nil
		}, nil)

	if peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestMapFilesIndexed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called atomic.Int32
	_, errs := MapFilesIndexed(ctx, []string{"a", "b", "c"}, 1,
		func(context.Context, *parser.Parser, string) (int, error) {
			called.Add(1)
			return 0, nil
		}, nil)

	if called.Load() != 0 {
		t.Errorf("fn called %d times after cancellation", called.Load())
	}
	if errs == nil || len(errs.Errors) != 3 || !errors.Is(errs.Errors[0], context.Canceled) {
		t.Errorf("errs = %v, want three context.Canceled", errs)
	}
}

func TestProcessingErrors(t *testing.T) {
	var nilErrs *ProcessingErrors
	if nilErrs.HasErrors() {
		t.Error("nil collection has no errors")
	}

	errs := &ProcessingErrors{}
	if errs.Error() != "no errors" {
		t.Errorf("Error() = %q", errs.Error())
	}
	errs.Add("a.java", errors.New("x"))
	if errs.Error() != "a.java: x" {
		t.Errorf("Error() = %q", errs.Error())
	}
	errs.Add("b.java", errors.New("y"))
	if errs.Error() != "2 files failed to process (first: a.java: x)" {
		t.Errorf("Error() = %q", errs.Error())
	}
}

func TestWorkers(t *testing.T) {
	if Workers(5) != 5 {
		t.Error("explicit worker count should be kept")
	}
	if Workers(0) < DefaultWorkerMultiplier {
		t.Error("default worker count should scale with NumCPU")
	}
}

func BenchmarkMapFilesIndexed(b *testing.B) {
	tmpDir := b.TempDir()
	files := make([]string, 20)
	for i := range files {
		files[i] = createTestFile(b, tmpDir, fmt.Sprintf("B%d.java", i), "class B { void f() { g(); } }")
	}
	fn := func(ctx context.Context, p *parser.Parser, path string) (int, error) {
		res, err := p.ParseFile(ctx, path)
		if err != nil {
			return 0, err
		}
		defer res.Close()
		return int(res.Root().ChildCount()), nil
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		MapFilesIndexed(context.Background(), files, 0, fn, nil)
	}
}
