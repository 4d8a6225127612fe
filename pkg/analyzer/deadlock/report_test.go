package deadlock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/locksmith/pkg/analyzer/callgraph"
	"github.com/panbanda/locksmith/pkg/analyzer/locktrace"
	"github.com/panbanda/locksmith/pkg/model"
)

func lockThen(first, second string) []*model.Stmt {
	return []*model.Stmt{
		model.ExprStmt(model.Call(model.Ident(first), "lock")),
		model.ExprStmt(model.Call(model.Ident(second), "lock")),
		model.ExprStmt(model.Call(model.Ident(second), "unlock")),
		model.ExprStmt(model.Call(model.Ident(first), "unlock")),
	}
}

func bankReport(t *testing.T, withTraces bool) *Report {
	t.Helper()
	mb := model.NewBuilder()
	mb.Add(&model.FileDecl{
		Path:    "Bank.java",
		Package: "bank",
		Classes: []*model.ClassDecl{{
			Name: "Bank",
			Fields: []*model.FieldDecl{
				{Name: "a", Type: model.Ref("ReentrantLock")},
				{Name: "b", Type: model.Ref("ReentrantLock")},
			},
			Methods: []*model.MethodDecl{
				{Name: "ab", Body: lockThen("a", "b"), Line: 7},
				{Name: "ba", Body: lockThen("b", "a"), Line: 14},
			},
		}},
	})
	prog, err := mb.Build()
	require.NoError(t, err)

	g, err := callgraph.NewBuilder(prog).Build(context.Background())
	require.NoError(t, err)
	entries := locktrace.SelectEntryPoints(prog.Functions(), []locktrace.Matcher{{Class: "*", Method: "*"}})
	res, err := locktrace.New(g).Run(context.Background(), entries)
	require.NoError(t, err)
	d, err := Detect(context.Background(), res.Traces)
	require.NoError(t, err)
	return NewReport(prog, res, d, withTraces)
}

func TestNewReport(t *testing.T) {
	r := bankReport(t, false)

	require.True(t, r.HasDeadlocks())
	require.Len(t, r.Deadlocks, 1)
	f := r.Deadlocks[0]
	assert.Equal(t, "bank.Bank.a", f.LockA)
	assert.Equal(t, "bank.Bank.b", f.LockB)
	assert.Equal(t, "bank.Bank.ab", f.AThenB.Name)
	assert.Equal(t, 7, f.AThenB.Line)
	assert.Equal(t, "Bank.java", f.AThenB.File)
	assert.Equal(t, "bank.Bank.ba", f.BThenA.Name)

	assert.Equal(t, []LockInfo{{ID: 1, Name: "bank.Bank.a"}, {ID: 2, Name: "bank.Bank.b"}}, r.Locks)
	assert.Len(t, r.Dependencies, 2)
	assert.Empty(t, r.Traces)

	assert.Equal(t, Summary{
		Classes:           1,
		Functions:         2,
		EntryPoints:       2,
		FunctionsExpanded: 2,
		Locks:             2,
		NestingEdges:      2,
		Pairs:             1,
		Deadlocks:         1,
	}, r.Summary)
}

func TestNewReport_WithTraces(t *testing.T) {
	r := bankReport(t, true)
	require.Len(t, r.Traces, 2)
	assert.Equal(t, "bank.Bank.ab", r.Traces[0].Function)
	assert.Equal(t, []string{"+bank.Bank.a", "+bank.Bank.b", "-bank.Bank.b", "-bank.Bank.a"}, r.Traces[0].Events)
	assert.Equal(t, []string{"bank.Bank.a", "bank.Bank.b"}, r.Traces[0].Held)
}
