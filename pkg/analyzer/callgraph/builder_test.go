package callgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/panbanda/locksmith/pkg/model"
)

func ref(name string) *model.TypeRef {
	r := model.Ref(name)
	return &r
}

func buildGraph(t *testing.T, opts []Option, classes ...*model.ClassDecl) (*model.Program, *Graph) {
	t.Helper()
	mb := model.NewBuilder()
	mb.Add(&model.FileDecl{Path: "Test.java", Classes: classes})
	prog, err := mb.Build()
	require.NoError(t, err)
	g, err := NewBuilder(prog, opts...).Build(context.Background())
	require.NoError(t, err)
	return prog, g
}

func methodOf(t *testing.T, p *model.Program, class, name string) *model.Function {
	t.Helper()
	c := p.Class(class)
	require.NotNil(t, c, class)
	for _, m := range c.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %s.%s not found", class, name)
	return nil
}

// kinds flattens entries into kind strings, joining split alternatives.
func kinds(p *model.Program, entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		s := ""
		for i, n := range e {
			if i > 0 {
				s += "|"
			}
			switch n.Kind {
			case NodeCall:
				s += "call " + p.Function(n.Target).QualifiedName()
			case NodeLock:
				s += "lock " + p.Locks.Name(n.Lock)
			case NodeUnlock:
				s += "unlock " + p.Locks.Name(n.Lock)
			default:
				s += n.Kind.String()
			}
		}
		out = append(out, s)
	}
	return out
}

func TestBuilder_SynchronizedDesugaring(t *testing.T) {
	cls := &model.ClassDecl{
		Name:   "Account",
		Fields: []*model.FieldDecl{{Name: "lock", Type: model.Ref("ReentrantLock")}},
		Methods: []*model.MethodDecl{
			{Name: "deposit", Synchronized: true, Return: ref("void"), Body: []*model.Stmt{
				model.ExprStmt(model.Call(nil, "audit")),
			}},
			{Name: "transfer", Return: ref("void"), Body: []*model.Stmt{
				model.SyncStmt(model.This(),
					model.ExprStmt(model.Call(model.Ident("lock"), "lock")),
					model.ExprStmt(model.Call(model.Ident("lock"), "unlock")),
				),
			}},
			{Name: "audit", Return: ref("void"), Body: []*model.Stmt{}},
		},
	}
	p, g := buildGraph(t, nil, cls)

	deposit := methodOf(t, p, "Account", "deposit")
	assert.Equal(t, []string{
		"lock monitor:Account.this",
		"call Account.audit",
		"unlock monitor:Account.this",
	}, kinds(p, g.Entries(deposit.ID)))

	transfer := methodOf(t, p, "Account", "transfer")
	assert.Equal(t, []string{
		"lock monitor:Account.this",
		"lock Account.lock",
		"unlock Account.lock",
		"unlock monitor:Account.this",
	}, kinds(p, g.Entries(transfer.ID)))

	assert.Empty(t, g.Entries(methodOf(t, p, "Account", "audit").ID))
}

func TestBuilder_InterfaceCallIsSplitPoint(t *testing.T) {
	p, g := buildGraph(t, nil,
		&model.ClassDecl{Name: "Task", Kind: model.ClassKindInterface, Methods: []*model.MethodDecl{
			{Name: "exec", Return: ref("void")},
		}},
		&model.ClassDecl{Name: "A", Interfaces: []model.TypeRef{model.Ref("Task")}, Methods: []*model.MethodDecl{
			{Name: "exec", Return: ref("void"), Body: []*model.Stmt{}},
		}},
		&model.ClassDecl{Name: "B", Interfaces: []model.TypeRef{model.Ref("Task")}, Methods: []*model.MethodDecl{
			{Name: "exec", Return: ref("void"), Body: []*model.Stmt{}},
		}},
		&model.ClassDecl{Name: "Runner", Methods: []*model.MethodDecl{
			{Name: "go", Params: []model.ParamDecl{{Name: "t", Type: model.Ref("Task")}}, Return: ref("void"),
				Body: []*model.Stmt{model.ExprStmt(model.Call(model.Ident("t"), "exec"))}},
		}},
	)

	entries := g.Entries(methodOf(t, p, "Runner", "go").ID)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsSplit())
	assert.Equal(t, []string{"call A.exec|call B.exec"}, kinds(p, entries))

	stats := g.Stats()
	assert.Equal(t, 1, stats.SplitPoints)
	assert.Equal(t, 2, stats.CallNodes)
	assert.Empty(t, g.Entries(methodOf(t, p, "Task", "exec").ID), "abstract functions have no entries")
}

func TestBuilder_Lambdas(t *testing.T) {
	lambda := &model.Expr{Kind: model.ExprLambda, Line: 4, Lambda: &model.LambdaDecl{
		Body: []*model.Stmt{model.ExprStmt(model.Call(nil, "work"))},
	}}
	cls := func() *model.ClassDecl {
		return &model.ClassDecl{Name: "Pool", Methods: []*model.MethodDecl{
			{Name: "submit", Return: ref("void"), Body: []*model.Stmt{
				model.LocalStmt("r", ref("Runnable"), lambda),
			}},
			{Name: "work", Return: ref("void"), Body: []*model.Stmt{}},
		}}
	}

	p, g := buildGraph(t, nil, cls())
	submit := methodOf(t, p, "Pool", "submit")
	assert.Equal(t, []string{"call Pool.lambda$4"}, kinds(p, g.Entries(submit.ID)))
	lf := p.LambdaFunction(lambda)
	require.NotNil(t, lf)
	assert.Equal(t, []string{"call Pool.work"}, kinds(p, g.Entries(lf.ID)))

	p, g = buildGraph(t, []Option{WithInlineLambdas(false)}, cls())
	assert.Empty(t, g.Entries(methodOf(t, p, "Pool", "submit").ID))
}

func TestBuilder_OpaqueAndVarInference(t *testing.T) {
	p, g := buildGraph(t, nil,
		&model.ClassDecl{Name: "Script", Fields: []*model.FieldDecl{
			{Name: "engine", Type: model.Ref("ScriptEngine")},
		}, Methods: []*model.MethodDecl{
			{Name: "run", Return: ref("void"), Body: []*model.Stmt{
				model.LocalStmt("w", ref("var"), model.New(model.Ref("Worker"))),
				model.ExprStmt(model.Call(model.Ident("w"), "step")),
				model.ExprStmt(model.Call(model.Ident("engine"), "eval")),
			}},
		}},
		&model.ClassDecl{Name: "Worker", Methods: []*model.MethodDecl{
			{Name: "step", Return: ref("void"), Body: []*model.Stmt{}},
		}},
	)
	run := methodOf(t, p, "Script", "run")
	assert.Equal(t, []string{"call Worker.step", "opaque"}, kinds(p, g.Entries(run.ID)))
}

func TestGraph_StatsRecursiveGroups(t *testing.T) {
	funcs := []*model.Function{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}}
	g := NewGraph(funcs)
	g.Add(0, CallNode(1))
	g.Add(1, CallNode(0))
	g.Add(2, CallNode(2))
	g.Add(3, LockNode(1))
	g.Add(3, UnlockNode(1))
	g.Add(3)

	s := g.Stats()
	assert.Equal(t, 2, s.RecursiveGroups)
	assert.Equal(t, 5, s.Entries)
	assert.Equal(t, 1, s.LockNodes)
	assert.Equal(t, 1, s.UnlockNodes)
	assert.Equal(t, 3, s.CallNodes)
	assert.Nil(t, g.Entries(99))
}

func TestBuilder_Span(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	buildGraph(t, nil, &model.ClassDecl{Name: "Solo", Methods: []*model.MethodDecl{
		{Name: "a", Return: ref("void"), Body: []*model.Stmt{}},
	}})

	spans := exporter.GetSpans()
	require.NotEmpty(t, spans)
	assert.Equal(t, "callgraph.Builder.Build", spans[len(spans)-1].Name)
}

func TestBuilder_CancelledContext(t *testing.T) {
	mb := model.NewBuilder()
	mb.Add(&model.FileDecl{Path: "A.java", Classes: []*model.ClassDecl{{Name: "A", Methods: []*model.MethodDecl{
		{Name: "a", Return: ref("void"), Body: []*model.Stmt{}},
	}}}})
	prog, err := mb.Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewBuilder(prog).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
