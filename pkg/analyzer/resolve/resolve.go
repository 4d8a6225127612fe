// Package resolve computes the static types of normalized expressions and
// reports the calls, lock operations and dynamic invocations it encounters
// while doing so.
package resolve

import (
	"log/slog"
	"strings"

	"github.com/panbanda/locksmith/pkg/model"
)

// Emitter receives the effects of an expression in evaluation order:
// receiver first, then arguments, then the operation itself.
type Emitter interface {
	// Call is invoked once per call site with every possible target.
	Call(site *model.Expr, targets []*model.Function)
	Lock(site *model.Expr, lock model.LockID)
	Unlock(site *model.Expr, lock model.LockID)
	// Opaque marks a dynamic invocation whose target cannot be known.
	Opaque(site *model.Expr)
	// Lambda reports a lambda expression evaluated at site.
	Lambda(site *model.Expr, fn *model.Function)
}

// Discard is an Emitter that drops every effect.
type Discard struct{}

func (Discard) Call(*model.Expr, []*model.Function) {}
func (Discard) Lock(*model.Expr, model.LockID)      {}
func (Discard) Unlock(*model.Expr, model.LockID)    {}
func (Discard) Opaque(*model.Expr)                  {}
func (Discard) Lambda(*model.Expr, *model.Function) {}

// Scope is the lexical context an expression is resolved in.
type Scope struct {
	Func  *model.Function
	Class *model.Class
}

// ScopeOf returns the scope of a function body.
func ScopeOf(fn *model.Function) Scope {
	return Scope{Func: fn, Class: fn.Class}
}

// Resolution is the primary type of an expression plus every candidate type
// when dispatch fanned out to several targets.
type Resolution struct {
	Type       model.Result
	Candidates []model.TypeID
}

// Stats counts resolution outcomes.
type Stats struct {
	Resolved int
	Unknown  int
	Ignored  int
	Opaque   int
	Calls    int
}

// Resolver resolves expressions against a linked Program.
type Resolver struct {
	prog   *model.Program
	types  *model.TypeTable
	logger *slog.Logger
	stats  Stats
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for best-effort diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver for prog.
func New(prog *model.Program, opts ...Option) *Resolver {
	r := &Resolver{
		prog:   prog,
		types:  prog.Types,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats returns the counters accumulated so far.
func (r *Resolver) Stats() Stats {
	return r.stats
}

// Resolve returns the type of e and reports its effects to emit. A nil
// emit discards them.
func (r *Resolver) Resolve(e *model.Expr, sc Scope, emit Emitter) Resolution {
	if emit == nil {
		emit = Discard{}
	}
	return r.resolve(e, sc, emit)
}

// InferLocals fills the types of locals declared without one from their
// initializers. It reports no effects and leaves the counters untouched.
func (r *Resolver) InferLocals(fn *model.Function) {
	saved := r.stats
	defer func() { r.stats = saved }()
	r.inferLocals(fn, fn.Body)
}

func (r *Resolver) inferLocals(fn *model.Function, body []*model.Stmt) {
	for _, s := range body {
		if s == nil {
			continue
		}
		switch s.Kind {
		case model.StmtLocal:
			if s.Expr == nil || (s.Type != nil && !s.Type.IsVar()) {
				continue
			}
			if id, ok := r.resolve(s.Expr, ScopeOf(fn), Discard{}).Type.ID(); ok {
				fn.DeclareLocal(s.Name, id)
			}
		case model.StmtSync:
			r.inferLocals(fn, s.Body)
		}
	}
}

func single(t model.Result) Resolution {
	res := Resolution{Type: t}
	if id, ok := t.ID(); ok {
		res.Candidates = []model.TypeID{id}
	}
	return res
}

// determined returns a unless it is unknown, else b.
func determined(a, b model.Result) model.Result {
	if !a.IsUnknown() {
		return a
	}
	return b
}

func (r *Resolver) resolve(e *model.Expr, sc Scope, emit Emitter) Resolution {
	if e == nil {
		return single(model.Unknown())
	}
	var res Resolution
	switch e.Kind {
	case model.ExprIdentifier:
		res = single(r.identifier(e.Name, sc))
	case model.ExprMemberAccess:
		res = single(r.member(e, sc, emit))
	case model.ExprInvocation:
		res = r.invocation(e, sc, emit)
	case model.ExprBinaryOp:
		left := r.resolve(e.Operand(0), sc, emit).Type
		right := r.resolve(e.Operand(1), sc, emit).Type
		res = single(binaryType(e.Op, left, right))
	case model.ExprUnaryOp:
		operand := r.resolve(e.Operand(0), sc, emit).Type
		if e.Op == "!" {
			operand = model.Resolved(model.TypeBool)
		}
		res = single(operand)
	case model.ExprLiteral:
		res = single(literalType(e.Literal))
	case model.ExprCast:
		r.resolve(e.Operand(0), sc, emit)
		res = single(r.typeRef(e.Type, sc))
	case model.ExprObjectCreation:
		res = single(r.creation(e, sc, emit))
	case model.ExprArrayIndex:
		arr := r.resolve(e.Operand(0), sc, emit).Type
		r.resolve(e.Operand(1), sc, emit)
		res = single(r.element(arr))
	case model.ExprTernary:
		r.resolve(e.Operand(0), sc, emit)
		then := r.resolve(e.Operand(1), sc, emit)
		els := r.resolve(e.Operand(2), sc, emit)
		res = Resolution{Type: determined(then.Type, els.Type)}
		res.Candidates = append(append(res.Candidates, then.Candidates...), els.Candidates...)
	case model.ExprThis:
		if sc.Class != nil {
			res = single(model.Resolved(sc.Class.Type))
		} else {
			res = single(model.Unknown())
		}
	case model.ExprSuper:
		res = single(r.super(sc))
	case model.ExprLambda:
		if fn := r.prog.LambdaFunction(e); fn != nil {
			emit.Lambda(e, fn)
		}
		res = single(model.Resolved(model.TypeInvocable))
	default:
		res = single(model.Unknown())
	}
	r.tally(res.Type)
	return res
}

func (r *Resolver) tally(t model.Result) {
	switch {
	case t.IsResolved():
		r.stats.Resolved++
	case t.IsIgnored():
		r.stats.Ignored++
	default:
		r.stats.Unknown++
	}
}

func (r *Resolver) typeRef(ref *model.TypeRef, sc Scope) model.Result {
	if ref == nil {
		return model.Unknown()
	}
	return r.types.Result(r.prog.ResolveTypeRef(*ref, sc.Class, sc.Func))
}

func (r *Resolver) super(sc Scope) model.Result {
	if sc.Class == nil {
		return model.Unknown()
	}
	if len(sc.Class.Supers) == 0 {
		return model.Resolved(model.TypeObject)
	}
	return r.types.Result(sc.Class.Supers[0])
}

func (r *Resolver) identifier(name string, sc Scope) model.Result {
	if sc.Func != nil {
		if t, ok := sc.Func.Local(name); ok {
			return r.types.Result(t)
		}
	}
	for k := sc.Class; k != nil; k = k.Parent {
		if _, t, ok := r.prog.FieldOwner(k, name); ok {
			return r.types.Result(t)
		}
	}
	for k := sc.Class; k != nil; k = k.Parent {
		if r.prog.IsEnumConstant(k, name) {
			return model.Resolved(k.Type)
		}
	}
	if c := r.prog.LookupClass(name, sc.Class); c != nil {
		return model.Resolved(c.Type)
	}
	if id, ok := model.LookupBuiltin(name); ok {
		return model.Resolved(id)
	}
	if name != "" && name[0] >= 'A' && name[0] <= 'Z' {
		return model.Ignored()
	}
	r.logger.Debug("unresolved identifier", slog.String("name", name), slog.String("scope", scopeName(sc)))
	return model.Unknown()
}

func (r *Resolver) member(e *model.Expr, sc Scope, emit Emitter) model.Result {
	if e.Receiver == nil {
		return r.identifier(e.Name, sc)
	}
	recv := r.resolve(e.Receiver, sc, emit).Type
	id, ok := recv.ID()
	if !ok {
		if dotted := dottedName(e); dotted != "" {
			if c := r.prog.LookupClass(dotted, sc.Class); c != nil {
				return model.Resolved(c.Type)
			}
		}
		return recv
	}
	if r.types.Base(id) == model.TypeArray && e.Name == "length" {
		return model.Resolved(model.TypeInt)
	}
	cls := r.types.Class(id)
	if cls == nil {
		return model.Unknown()
	}
	if _, t, ok := r.prog.FieldOwner(cls, e.Name); ok {
		return r.types.Result(r.bind(t, id, 0))
	}
	if r.prog.IsEnumConstant(cls, e.Name) {
		return model.Resolved(cls.Type)
	}
	for _, k := range r.prog.Ancestry(cls) {
		if n := k.Nested[e.Name]; n != nil {
			return model.Resolved(n.Type)
		}
	}
	r.logger.Debug("unresolved member",
		slog.String("class", cls.QualifiedName),
		slog.String("member", e.Name),
		slog.Int("line", e.Line))
	return model.Unknown()
}

// dottedName flattens a chain of identifiers and member accesses.
func dottedName(e *model.Expr) string {
	var parts []string
	x := e
	for x != nil && x.Kind == model.ExprMemberAccess {
		parts = append(parts, x.Name)
		x = x.Receiver
	}
	if x == nil || x.Kind != model.ExprIdentifier {
		return ""
	}
	parts = append(parts, x.Name)
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func (r *Resolver) invocation(e *model.Expr, sc Scope, emit Emitter) Resolution {
	var recv model.Result
	hasRecv := e.Receiver != nil
	viaSuper := hasRecv && e.Receiver.Kind == model.ExprSuper
	if hasRecv {
		recv = r.resolve(e.Receiver, sc, emit).Type
	}
	args := make([]model.Result, len(e.Args))
	for i, a := range e.Args {
		args[i] = r.resolve(a, sc, emit).Type
	}
	if !hasRecv {
		return r.implicitCall(e, sc, args, emit)
	}

	id, ok := recv.ID()
	if !ok {
		if h, ok := heuristic(e.Name, recv); ok {
			return single(h)
		}
		return single(recv)
	}
	switch base := r.types.Base(id); {
	case base == model.TypeLock:
		return single(r.lockCall(e, sc, emit))
	case base == model.TypeInvocable:
		if dynamicCalls[e.Name] {
			r.stats.Opaque++
			emit.Opaque(e)
		}
		if h, ok := heuristic(e.Name, recv); ok {
			return single(h)
		}
		return single(model.Unknown())
	}
	if cls := r.types.Class(id); cls != nil {
		return r.methodCall(e, cls, id, args, emit, viaSuper)
	}
	if _, _, isMask := r.types.Mask(id); isMask {
		h, _ := heuristic(e.Name, recv)
		return single(h)
	}
	return single(r.builtinCall(e.Name, id))
}

func (r *Resolver) implicitCall(e *model.Expr, sc Scope, args []model.Result, emit Emitter) Resolution {
	for k := sc.Class; k != nil; k = k.Parent {
		if r.findMethod(k, e.Name, args) != nil {
			return r.methodCall(e, k, k.Type, args, emit, false)
		}
	}
	if h, ok := heuristic(e.Name, model.Unknown()); ok {
		return single(h)
	}
	r.logger.Debug("unresolved call", slog.String("method", e.Name), slog.String("scope", scopeName(sc)), slog.Int("line", e.Line))
	return single(model.Unknown())
}

func (r *Resolver) methodCall(e *model.Expr, cls *model.Class, recv model.TypeID, args []model.Result, emit Emitter, static bool) Resolution {
	best := r.findMethod(cls, e.Name, args)
	if best == nil {
		if h, ok := heuristic(e.Name, model.Resolved(recv)); ok {
			return single(h)
		}
		r.logger.Debug("method not found",
			slog.String("class", cls.QualifiedName),
			slog.String("method", e.Name),
			slog.Int("args", len(args)),
			slog.Int("line", e.Line))
		return single(model.Unknown())
	}

	var targets []*model.Function
	if !best.Abstract {
		targets = append(targets, best)
	}
	if !static && !best.Static && (cls.IsInterface() || best.Abstract || best.Class != cls) {
		for _, sub := range r.prog.Descendants(cls) {
			m := r.declaredMatch(sub, e.Name, args)
			if m == nil || m.Abstract || containsFunc(targets, m) {
				continue
			}
			targets = append(targets, m)
		}
	}
	if len(targets) > 0 {
		r.stats.Calls++
		emit.Call(e, targets)
	}

	res := Resolution{Type: r.types.Result(r.bind(best.Return, recv, 0))}
	seen := make(map[model.TypeID]bool)
	for _, t := range targets {
		ret := r.bind(t.Return, recv, 0)
		if ret == 0 || seen[ret] {
			continue
		}
		seen[ret] = true
		res.Candidates = append(res.Candidates, ret)
	}
	return res
}

func (r *Resolver) creation(e *model.Expr, sc Scope, emit Emitter) model.Result {
	args := make([]model.Result, len(e.Args))
	for i, a := range e.Args {
		args[i] = r.resolve(a, sc, emit).Type
	}
	if e.Type == nil {
		return model.Unknown()
	}
	t := r.prog.ResolveTypeRef(*e.Type, sc.Class, sc.Func)
	if cls := r.types.Class(t); cls != nil {
		if ctor := r.pick(cls.Constructors, args); ctor != nil {
			r.stats.Calls++
			emit.Call(e, []*model.Function{ctor})
		}
	}
	return r.types.Result(t)
}

func (r *Resolver) element(arr model.Result) model.Result {
	id, ok := arr.ID()
	if !ok {
		return arr
	}
	if r.types.Base(id) == model.TypeArray {
		if comps := r.types.Components(id); len(comps) > 0 {
			return r.types.Result(comps[0])
		}
	}
	return model.Unknown()
}

func (r *Resolver) lockCall(e *model.Expr, sc Scope, emit Emitter) model.Result {
	switch {
	case model.IsLockAcquire(e.Name):
		emit.Lock(e, r.lockOf(e.Receiver, sc))
		if strings.HasPrefix(e.Name, "try") {
			return model.Resolved(model.TypeBool)
		}
		return model.Resolved(model.TypeVoid)
	case model.IsLockRelease(e.Name):
		emit.Unlock(e, r.lockOf(e.Receiver, sc))
		return model.Resolved(model.TypeVoid)
	case model.IsLockView(e.Name):
		return model.Resolved(model.TypeLock)
	}
	h, _ := heuristic(e.Name, model.Resolved(model.TypeLock))
	return h
}

// lockOf determines which lock a lock-typed receiver expression denotes.
func (r *Resolver) lockOf(e *model.Expr, sc Scope) model.LockID {
	if e == nil {
		return model.UnknownLock
	}
	switch e.Kind {
	case model.ExprInvocation:
		if model.IsLockView(e.Name) {
			return r.lockOf(e.Receiver, sc)
		}
	case model.ExprIdentifier:
		if sc.Func != nil {
			if _, local := sc.Func.Local(e.Name); local {
				break
			}
		}
		for k := sc.Class; k != nil; k = k.Parent {
			if id, ok := r.fieldLock(k, e.Name); ok {
				return id
			}
		}
	case model.ExprMemberAccess:
		var cls *model.Class
		if e.Receiver == nil || e.Receiver.Kind == model.ExprThis {
			cls = sc.Class
		} else if id, ok := r.resolve(e.Receiver, sc, Discard{}).Type.ID(); ok {
			cls = r.types.Class(id)
		}
		if cls != nil {
			if id, ok := r.fieldLock(cls, e.Name); ok {
				return id
			}
		}
	}
	r.logger.Warn("lock identity unresolved",
		slog.String("scope", scopeName(sc)),
		slog.Int("line", e.Line))
	return model.UnknownLock
}

func (r *Resolver) fieldLock(cls *model.Class, field string) (model.LockID, bool) {
	owner, _, ok := r.prog.FieldOwner(cls, field)
	if !ok {
		return 0, false
	}
	l, ok := r.prog.Locks.Lookup(model.FieldLockName(owner, field))
	if !ok {
		return 0, false
	}
	return l.ID, true
}

func containsFunc(fns []*model.Function, fn *model.Function) bool {
	for _, f := range fns {
		if f == fn {
			return true
		}
	}
	return false
}

func scopeName(sc Scope) string {
	switch {
	case sc.Func != nil:
		return sc.Func.QualifiedName()
	case sc.Class != nil:
		return sc.Class.QualifiedName
	}
	return ""
}
