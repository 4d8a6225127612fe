package java

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/locksmith/pkg/model"
	"github.com/panbanda/locksmith/pkg/parser"
)

func extract(t *testing.T, src string) *model.FileDecl {
	t.Helper()
	p := parser.New()
	defer p.Close()
	res, err := p.Parse(context.Background(), []byte(src), parser.LangJava, "Test.java")
	require.NoError(t, err)
	defer res.Close()
	require.Empty(t, parser.SyntaxErrors(res.Root()), "fixture must parse cleanly")
	decl, err := Extract(res)
	require.NoError(t, err)
	return decl
}

func method(t *testing.T, cd *model.ClassDecl, name string) *model.MethodDecl {
	t.Helper()
	for _, m := range cd.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %s not found in %s", name, cd.Name)
	return nil
}

// shape renders statements as "local x" or the invoked method name.
func shape(body []*model.Stmt) []string {
	var out []string
	for _, s := range body {
		switch s.Kind {
		case model.StmtLocal:
			out = append(out, "local "+s.Name)
		case model.StmtSync:
			out = append(out, "sync")
		default:
			if s.Expr.Kind == model.ExprInvocation {
				out = append(out, s.Expr.Name)
			} else {
				out = append(out, s.Expr.Kind.String())
			}
		}
	}
	return out
}

const accountSrc = `package app;

import java.util.concurrent.locks.ReentrantLock;
import java.util.*;
import static java.lang.Math.max;

public class Account<T> extends Base implements Runnable, Comparable<Account<T>> {
    private final ReentrantLock lock = new ReentrantLock();
    private final Object guard = new Object(), other;
    static int count;
    private int[] slots;

    public Account(int n) {
        super(n);
    }

    public synchronized void deposit(int amount) {
        lock.lock();
        try {
            helper(amount);
        } finally {
            lock.unlock();
        }
    }

    void transfer(Account<T> to) {
        synchronized (guard) {
            for (var a : list) {
                a.run();
            }
        }
    }
}

interface Task {
    void execute(String... args);

    default void noop() {
        execute();
    }
}

enum Mode {
    FAST,
    SLOW {
        void go() {}
    };
}
`

func TestExtract_Declarations(t *testing.T) {
	f := extract(t, accountSrc)

	assert.Equal(t, "Test.java", f.Path)
	assert.Equal(t, "java", f.Language)
	assert.Equal(t, "app", f.Package)
	assert.Equal(t, []string{"java.util.concurrent.locks.ReentrantLock", "java.util.*"}, f.Imports)
	require.Len(t, f.Classes, 3)

	acc := f.Classes[0]
	assert.Equal(t, "Account", acc.Name)
	assert.Equal(t, model.ClassKindClass, acc.Kind)
	assert.Equal(t, []string{"T"}, acc.TypeParams)
	require.NotNil(t, acc.Superclass)
	assert.Equal(t, "Base", acc.Superclass.Name)
	require.Len(t, acc.Interfaces, 2)
	assert.Equal(t, "Runnable", acc.Interfaces[0].Name)
	assert.Equal(t, "Comparable<Account<T>>", acc.Interfaces[1].String())

	names := make([]string, len(acc.Fields))
	for i, fd := range acc.Fields {
		names[i] = fd.Name
	}
	assert.Equal(t, []string{"lock", "guard", "other", "count", "slots"}, names)
	assert.Equal(t, "ReentrantLock", acc.Fields[0].Type.Name)
	require.NotNil(t, acc.Fields[0].Init)
	assert.Equal(t, model.ExprObjectCreation, acc.Fields[0].Init.Kind)
	assert.Nil(t, acc.Fields[2].Init)
	assert.True(t, acc.Fields[3].Static)
	assert.Equal(t, model.TypeRef{Name: "int", Dims: 1}, acc.Fields[4].Type)
}

func TestExtract_Methods(t *testing.T) {
	f := extract(t, accountSrc)
	acc := f.Classes[0]

	ctor := method(t, acc, "Account")
	assert.True(t, ctor.Constructor)
	assert.Nil(t, ctor.Return)
	require.Len(t, ctor.Body, 1)
	sup := ctor.Body[0].Expr
	assert.Equal(t, model.ExprObjectCreation, sup.Kind)
	assert.Equal(t, "Base", sup.Type.Name)
	assert.Len(t, sup.Args, 1)

	dep := method(t, acc, "deposit")
	assert.True(t, dep.Synchronized)
	assert.Equal(t, []model.ParamDecl{{Name: "amount", Type: model.Ref("int")}}, dep.Params)
	assert.Equal(t, "void", dep.Return.Name)
	assert.Equal(t, []string{"lock", "helper", "unlock"}, shape(dep.Body))
	assert.Equal(t, "lock", dep.Body[0].Expr.Receiver.Name)
	assert.Nil(t, dep.Body[1].Expr.Receiver)
	assert.Equal(t, 18, dep.Body[0].Line)

	tr := method(t, acc, "transfer")
	require.Len(t, tr.Body, 1)
	sync := tr.Body[0]
	assert.Equal(t, model.StmtSync, sync.Kind)
	assert.Equal(t, model.ExprIdentifier, sync.Expr.Kind)
	assert.Equal(t, "guard", sync.Expr.Name)
	assert.Equal(t, 27, sync.Line)
	assert.Equal(t, []string{"local a", "run"}, shape(sync.Body))
	loop := sync.Body[0]
	assert.True(t, loop.Type.IsVar())
	assert.Equal(t, "next", loop.Expr.Name)
	assert.Equal(t, "iterator", loop.Expr.Receiver.Name)
	assert.Equal(t, "list", loop.Expr.Receiver.Receiver.Name)

	task := f.Classes[1]
	assert.Equal(t, model.ClassKindInterface, task.Kind)
	exec := method(t, task, "execute")
	assert.True(t, exec.Abstract)
	assert.True(t, exec.Variadic)
	assert.Equal(t, []model.ParamDecl{{Name: "args", Type: model.Ref("String")}}, exec.Params)
	noop := method(t, task, "noop")
	assert.False(t, noop.Abstract)
	assert.Equal(t, []string{"execute"}, shape(noop.Body))
}

func TestExtract_Enum(t *testing.T) {
	f := extract(t, accountSrc)
	mode := f.Classes[2]
	assert.Equal(t, model.ClassKindEnum, mode.Kind)
	assert.Equal(t, []string{"FAST", "SLOW"}, mode.EnumConstants)
	require.Len(t, mode.Classes, 1)
	slow := mode.Classes[0]
	assert.Equal(t, "SLOW", slow.Name)
	assert.True(t, slow.Anonymous)
	assert.Equal(t, "Mode", slow.Superclass.Name)
	method(t, slow, "go")
}

func TestExtract_Expressions(t *testing.T) {
	f := extract(t, `class Pool {
    void start() {
        Runnable r = () -> work();
        executor.submit(new Runnable() {
            public void run() { work(); }
        });
        list.forEach(this::work);
        int x = cond ? a.b().c : (int) y[0];
        count += 1;
        boolean ok = !done && x instanceof Integer;
    }
}
`)
	pool := f.Classes[0]
	start := method(t, pool, "start")
	require.Len(t, start.Body, 6)

	r := start.Body[0]
	assert.Equal(t, "Runnable", r.Type.Name)
	require.Equal(t, model.ExprLambda, r.Expr.Kind)
	assert.Equal(t, []string{"work"}, shape(r.Expr.Lambda.Body))
	assert.Equal(t, 3, r.Expr.Line)

	submit := start.Body[1].Expr
	assert.Equal(t, "submit", submit.Name)
	require.Len(t, submit.Args, 1)
	assert.Equal(t, model.ExprObjectCreation, submit.Args[0].Kind)
	require.Len(t, pool.Classes, 1)
	anon := pool.Classes[0]
	assert.Equal(t, submit.Args[0].Type.Name, anon.Name)
	assert.True(t, anon.Anonymous)
	assert.Equal(t, "Runnable", anon.Superclass.Name)
	assert.Equal(t, []string{"work"}, shape(method(t, anon, "run").Body))

	ref := start.Body[2].Expr.Args[0]
	require.Equal(t, model.ExprLambda, ref.Kind)
	call := ref.Lambda.Body[0].Expr
	assert.Equal(t, "work", call.Name)
	assert.Equal(t, model.ExprThis, call.Receiver.Kind)

	tern := start.Body[3].Expr
	require.Equal(t, model.ExprTernary, tern.Kind)
	assert.Equal(t, model.ExprMemberAccess, tern.Operand(1).Kind)
	assert.Equal(t, "c", tern.Operand(1).Name)
	assert.Equal(t, "b", tern.Operand(1).Receiver.Name)
	assert.Equal(t, model.ExprCast, tern.Operand(2).Kind)
	assert.Equal(t, "int", tern.Operand(2).Type.Name)
	assert.Equal(t, model.ExprArrayIndex, tern.Operand(2).Operand(0).Kind)

	assign := start.Body[4].Expr
	assert.Equal(t, model.ExprBinaryOp, assign.Kind)
	assert.Equal(t, "+=", assign.Op)

	and := start.Body[5].Expr
	assert.Equal(t, "&&", and.Op)
	assert.Equal(t, model.ExprUnaryOp, and.Operand(0).Kind)
	assert.Equal(t, "instanceof", and.Operand(1).Op)
}

func TestExtract_FlattensControlFlow(t *testing.T) {
	f := extract(t, `class Flow {
    void f() {
        if (a()) { b(); } else { c(); }
        while (d()) e();
        for (int i = g(); h(); k()) { m(); }
        switch (n()) {
            case 1:
                o();
                break;
            default:
                p();
        }
        try (Res r = open()) {
            q();
        } catch (IOException ex) {
            s();
        }
        return;
    }
}
`)
	body := method(t, f.Classes[0], "f").Body
	assert.Equal(t, []string{
		"a", "b", "c", "d", "e",
		"local i", "h", "m", "k",
		"n", "o", "p",
		"local r", "q", "local ex", "s",
	}, shape(body))
}

func TestExtract_LocalClassAttachesToEnclosingClass(t *testing.T) {
	f := extract(t, `class Outer {
    void f() {
        class Helper { void h() {} }
        new Helper().h();
    }
}
`)
	outer := f.Classes[0]
	require.Len(t, outer.Classes, 1)
	assert.Equal(t, "Helper", outer.Classes[0].Name)
	assert.False(t, outer.Classes[0].Anonymous)
}

func TestExtract_BuildsProgram(t *testing.T) {
	f := extract(t, accountSrc)
	b := model.NewBuilder()
	b.Add(f)
	prog, err := b.Build()
	require.NoError(t, err)

	_, ok := prog.Locks.Lookup("app.Account.lock")
	assert.True(t, ok)
	_, ok = prog.Locks.Lookup("monitor:app.Account.this")
	assert.True(t, ok, "synchronized method defines the instance monitor")
	_, ok = prog.Locks.Lookup("monitor:app.Account.guard")
	assert.True(t, ok, "synchronized block on a field names the field monitor")
	assert.NotNil(t, prog.Class("app.Mode.SLOW"))
}

func TestExtract_RejectsOtherInput(t *testing.T) {
	_, err := Extract(nil)
	assert.ErrorIs(t, err, ErrNotJava)
	_, err = Extract(&parser.ParseResult{Language: parser.LangUnknown})
	assert.ErrorIs(t, err, ErrNotJava)
}
