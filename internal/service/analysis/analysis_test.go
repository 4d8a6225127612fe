package analysis

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/locksmith/pkg/analyzer/deadlock"
	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
	"github.com/panbanda/locksmith/pkg/config"
)

const pipelineJava = `package app;

import java.util.concurrent.locks.ReentrantLock;

public class Pipeline {
    private final ReentrantLock x = new ReentrantLock();
    private final ReentrantLock y = new ReentrantLock();

    public void a() {
        b();
        c();
    }

    void b() {
        x.lock();
        c();
        x.unlock();
    }

    void c() {
        y.lock();
        y.unlock();
    }

    public void d() {
        y.lock();
        e();
        y.unlock();
    }

    void e() {
        x.lock();
        x.unlock();
    }
}
`

const recursiveJava = `package app;

import java.util.concurrent.locks.ReentrantLock;

public class Recur {
    private final ReentrantLock x = new ReentrantLock();

    public void run() {
        x.lock();
        loop(3);
        x.unlock();
    }

    void loop(int n) {
        if (n > 0) {
            loop(n - 1);
        }
    }
}
`

const dispatchJava = `package app;

import java.util.concurrent.locks.ReentrantLock;

abstract class Base {
    protected final ReentrantLock x = new ReentrantLock();
    protected final ReentrantLock y = new ReentrantLock();

    abstract void foo();
}

class XWorker extends Base {
    void foo() {
        x.lock();
        x.unlock();
    }
}

class YWorker extends Base {
    void foo() {
        y.lock();
        y.unlock();
    }
}

public class Dispatch {
    private Base w;

    public void run() {
        w.x.lock();
        w.foo();
        w.x.unlock();
    }
}
`

const monitorsJava = `package app;

class A {
    private B b;

    synchronized void foo() {
        b.bar();
    }

    synchronized void qux() {
    }
}

class B {
    private A a;

    synchronized void bar() {
    }

    synchronized void baz() {
        a.qux();
    }
}
`

const readWriteJava = `package app;

import java.util.concurrent.locks.ReentrantLock;
import java.util.concurrent.locks.ReentrantReadWriteLock;

public class RW {
    private final ReentrantReadWriteLock rw = new ReentrantReadWriteLock();
    private final ReentrantLock y = new ReentrantLock();

    public void run() {
        rw.readLock().lock();
        y.lock();
        work();
        y.unlock();
        rw.readLock().unlock();
    }

    void work() {
    }
}
`

func writeSource(t *testing.T, name, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644))
	return dir
}

func newService(t *testing.T) *Service {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Analysis.Workers = 2
	return New(WithConfig(cfg))
}

func entries(t *testing.T, specs ...string) []locktrace.Matcher {
	t.Helper()
	var out []locktrace.Matcher
	for _, s := range specs {
		m, err := locktrace.ParseEntryPoint(s)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func hasEdge(r *deadlock.Report, outer, inner string) bool {
	for _, e := range r.Dependencies {
		if e.Outer == outer && e.Inner == inner {
			return true
		}
	}
	return false
}

func TestAnalyze_OneDirectionIsNotADeadlock(t *testing.T) {
	dir := writeSource(t, "Pipeline.java", pipelineJava)

	res, err := newService(t).Analyze(context.Background(), Options{
		Paths:       []string{dir},
		EntryPoints: entries(t, "Pipeline#a"),
	})
	require.NoError(t, err)

	r := res.Report
	assert.False(t, r.HasDeadlocks())
	assert.True(t, hasEdge(r, "app.Pipeline.x", "app.Pipeline.y"))
	assert.False(t, hasEdge(r, "app.Pipeline.y", "app.Pipeline.x"))
	assert.Equal(t, 1, r.Summary.Files)
	assert.Equal(t, 1, r.Summary.EntryPoints)
	assert.Equal(t, 2, r.Summary.Locks)
	assert.Empty(t, res.Failed)
}

func TestAnalyze_InvertedNestingIsReported(t *testing.T) {
	dir := writeSource(t, "Pipeline.java", pipelineJava)

	res, err := newService(t).Analyze(context.Background(), Options{
		Paths:       []string{dir},
		EntryPoints: entries(t, "Pipeline#a", "app.Pipeline#d"),
	})
	require.NoError(t, err)

	r := res.Report
	require.Len(t, r.Deadlocks, 1)
	f := r.Deadlocks[0]
	assert.Equal(t, "app.Pipeline.x", f.LockA)
	assert.Equal(t, "app.Pipeline.y", f.LockB)
	assert.Equal(t, "app.Pipeline.b", f.AThenB.Name, "b holds x while c takes y")
	assert.Equal(t, "app.Pipeline.d", f.BThenA.Name, "d holds y while e takes x")
	assert.Equal(t, "Pipeline.java", filepath.Base(f.AThenB.File))
}

func TestAnalyze_MonitorHoldersAreImplicated(t *testing.T) {
	dir := writeSource(t, "Monitors.java", monitorsJava)

	res, err := newService(t).Analyze(context.Background(), Options{
		Paths:       []string{dir},
		EntryPoints: entries(t, "A#foo", "B#baz"),
	})
	require.NoError(t, err)

	require.Len(t, res.Report.Deadlocks, 1)
	f := res.Report.Deadlocks[0]
	assert.ElementsMatch(t, []string{"app.A.foo", "app.B.baz"}, []string{f.AThenB.Name, f.BThenA.Name})
}

func TestAnalyze_BalancedNestingThroughCallee(t *testing.T) {
	dir := writeSource(t, "RW.java", readWriteJava)

	res, err := newService(t).Analyze(context.Background(), Options{
		Paths:       []string{dir},
		EntryPoints: entries(t, "RW#run"),
	})
	require.NoError(t, err)

	var found bool
	for _, e := range res.Report.Dependencies {
		if e.Outer == "app.RW.rw" && e.Inner == "app.RW.y" {
			found = true
			assert.Equal(t, 1, e.Acquires)
			assert.Equal(t, 1, e.Releases)
			assert.Equal(t, "app.RW.run", e.Witness)
		}
	}
	assert.True(t, found, "rw -> y edge")
	assert.False(t, res.Report.HasDeadlocks())
}

func TestAnalyze_Idempotent(t *testing.T) {
	dir := writeSource(t, "Pipeline.java", pipelineJava)
	svc := newService(t)

	forward, err := svc.Analyze(context.Background(), Options{
		Paths:       []string{dir},
		EntryPoints: entries(t, "Pipeline#a", "Pipeline#d"),
	})
	require.NoError(t, err)
	backward, err := svc.Analyze(context.Background(), Options{
		Paths:       []string{dir},
		EntryPoints: entries(t, "Pipeline#d", "Pipeline#a"),
	})
	require.NoError(t, err)

	assert.Equal(t, len(forward.Report.Deadlocks), len(backward.Report.Deadlocks))
	for i := range forward.Report.Deadlocks {
		assert.Equal(t, forward.Report.Deadlocks[i].LockA, backward.Report.Deadlocks[i].LockA)
		assert.Equal(t, forward.Report.Deadlocks[i].LockB, backward.Report.Deadlocks[i].LockB)
	}
	var fwd, bwd []string
	for _, e := range forward.Report.Dependencies {
		fwd = append(fwd, e.Outer+">"+e.Inner)
	}
	for _, e := range backward.Report.Dependencies {
		bwd = append(bwd, e.Outer+">"+e.Inner)
	}
	assert.Equal(t, fwd, bwd)
}

func TestAnalyze_RecursionTerminates(t *testing.T) {
	dir := writeSource(t, "Recur.java", recursiveJava)

	res, err := newService(t).Analyze(context.Background(), Options{
		Paths:      []string{dir},
		WithTraces: true,
	})
	require.NoError(t, err)
	assert.False(t, res.Report.HasDeadlocks())

	var run *deadlock.TraceInfo
	for i := range res.Report.Traces {
		if res.Report.Traces[i].Function == "app.Recur.run" {
			run = &res.Report.Traces[i]
		}
	}
	require.NotNil(t, run)
	assert.Equal(t, []string{"+app.Recur.x", "-app.Recur.x"}, run.Events)
}

func TestAnalyze_SplitPointExploresEveryOverride(t *testing.T) {
	dir := writeSource(t, "Dispatch.java", dispatchJava)

	res, err := newService(t).Analyze(context.Background(), Options{Paths: []string{dir}})
	require.NoError(t, err)

	assert.True(t, hasEdge(res.Report, "app.Base.x", "app.Base.y"))
	assert.False(t, res.Report.HasDeadlocks())
	assert.Positive(t, res.Graph.SplitPoints)
}

func TestAnalyze_NoEntryPoints(t *testing.T) {
	dir := writeSource(t, "Pipeline.java", pipelineJava)

	_, err := newService(t).Analyze(context.Background(), Options{
		Paths:       []string{dir},
		EntryPoints: entries(t, "Nope#start"),
	})
	require.ErrorIs(t, err, ErrNoEntryPoints)
	assert.Contains(t, err.Error(), "Nope#start")
}

func TestAnalyze_NoSources(t *testing.T) {
	_, err := newService(t).Analyze(context.Background(), Options{Paths: []string{t.TempDir()}})
	require.ErrorIs(t, err, ErrNoSources)
}

func TestAnalyze_Cancelled(t *testing.T) {
	dir := writeSource(t, "Pipeline.java", pipelineJava)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(t).Analyze(ctx, Options{Paths: []string{dir}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_CacheAndProgress(t *testing.T) {
	dir := writeSource(t, "Pipeline.java", pipelineJava)
	cfg := config.DefaultConfig()
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")
	var bar bytes.Buffer
	svc := New(WithConfig(cfg), WithProgress(&bar))

	opts := Options{Paths: []string{dir}, EntryPoints: entries(t, "Pipeline#a", "Pipeline#d")}
	first, err := svc.Analyze(context.Background(), opts)
	require.NoError(t, err)

	cached, err := os.ReadDir(cfg.Cache.Dir)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	second, err := svc.Analyze(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first.Report.Deadlocks, second.Report.Deadlocks)

	opts.NoCache = true
	third, err := svc.Analyze(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, first.Report.Deadlocks, third.Report.Deadlocks)
}

func TestExtractError(t *testing.T) {
	inner := errors.New("permission denied")
	err := &ExtractError{Path: "src/A.java", Err: inner}
	assert.Equal(t, "extract src/A.java: permission denied", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestDisplayPath(t *testing.T) {
	sep := string(filepath.Separator)
	assert.Equal(t, filepath.Join("src", "A.java"), displayPath(sep+"work", filepath.Join(sep+"work", "src", "A.java")))
	assert.Equal(t, sep+filepath.Join("other", "A.java"), displayPath(sep+"work", sep+filepath.Join("other", "A.java")))
	assert.Equal(t, "/x/A.java", displayPath("", "/x/A.java"))
}
