package model

import (
	"fmt"
	"log/slog"
	"strings"
)

// Builder links declaration records from any number of files into a Program.
type Builder struct {
	files  []*FileDecl
	logger *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for linking diagnostics.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add queues file declarations for linking.
func (b *Builder) Add(files ...*FileDecl) {
	for _, f := range files {
		if f != nil {
			b.files = append(b.files, f)
		}
	}
}

// Build links the queued declarations. Pass one registers classes and type
// parameters, pass two links supertypes, fields and locks, pass three creates
// functions for methods, constructors and lambdas.
func (b *Builder) Build() (*Program, error) {
	p := newProgram()
	var ordered []*Class

	for _, f := range b.files {
		for _, cd := range f.Classes {
			if err := b.register(p, f, cd, nil, &ordered); err != nil {
				return nil, err
			}
		}
	}

	for _, c := range ordered {
		b.linkSupers(p, c)
	}
	p.sortSubclasses()
	for _, c := range ordered {
		b.linkFields(p, c)
	}

	for _, c := range ordered {
		for _, md := range c.decl.Methods {
			fn := b.newFunction(p, c, md)
			if fn.Constructor {
				c.Constructors = append(c.Constructors, fn)
			} else {
				c.Methods = append(c.Methods, fn)
			}
		}
	}

	b.logger.Debug("program linked",
		slog.Int("classes", len(p.classList)),
		slog.Int("functions", len(p.functions)),
		slog.Int("locks", p.Locks.Len()))
	return p, nil
}

func (b *Builder) register(p *Program, f *FileDecl, cd *ClassDecl, parent *Class, ordered *[]*Class) error {
	if cd.Name == "" {
		return fmt.Errorf("%s: class declaration without a name at line %d", f.Path, cd.Line)
	}
	qualified := qualify(f.Package, cd.Name)
	if parent != nil {
		qualified = parent.QualifiedName + "." + cd.Name
	}
	if existing := p.classes[qualified]; existing != nil {
		b.logger.Warn("duplicate class declaration ignored",
			slog.String("class", qualified),
			slog.String("file", f.Path),
			slog.String("first", existing.File))
		return nil
	}

	c := newClass(cd.Name, qualified)
	c.Package = f.Package
	c.Kind = cd.Kind
	c.Abstract = cd.Abstract || cd.Kind == ClassKindInterface
	c.File = f.Path
	c.Line = cd.Line
	c.Parent = parent
	c.decl = cd
	c.Type = p.Types.NewClassType(c)
	for i, tp := range cd.TypeParams {
		c.Masks = append(c.Masks, p.Types.NewMask(c, i, tp))
	}
	for _, ec := range cd.EnumConstants {
		c.EnumConstants[ec] = true
	}
	if parent == nil {
		for _, imp := range f.Imports {
			if strings.HasSuffix(imp, ".*") {
				c.imports["*"+imp] = strings.TrimSuffix(imp, ".*")
				continue
			}
			c.imports[imp[strings.LastIndexByte(imp, '.')+1:]] = imp
		}
	} else {
		parent.Nested[cd.Name] = c
	}
	p.addClass(c)
	*ordered = append(*ordered, c)

	for _, nested := range cd.Classes {
		if err := b.register(p, f, nested, c, ordered); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) linkSupers(p *Program, c *Class) {
	cd := c.decl
	var supers []TypeID
	if cd.Superclass != nil {
		st := p.ResolveTypeRef(*cd.Superclass, c, nil)
		if sc := p.Types.Class(st); sc != nil && sc.IsInterface() && c.Kind != ClassKindInterface {
			supers = append(supers, TypeObject, st)
		} else {
			supers = append(supers, st)
		}
	}
	for _, ref := range cd.Interfaces {
		if len(supers) == 0 {
			supers = append(supers, TypeObject)
		}
		supers = append(supers, p.ResolveTypeRef(ref, c, nil))
	}
	c.Supers = supers
	for _, s := range p.Supertypes(c) {
		if s == c {
			continue
		}
		p.subclasses[s] = append(p.subclasses[s], c)
	}
}

func (b *Builder) linkFields(p *Program, c *Class) {
	aliases := make(map[string]string)
	for _, fd := range c.decl.Fields {
		t := p.ResolveTypeRef(fd.Type, c, nil)
		c.Fields[fd.Name] = t
		if p.Types.Base(t) != TypeLock {
			continue
		}
		if target := lockViewTarget(fd.Init); target != "" && target != fd.Name {
			aliases[fd.Name] = target
		}
	}
	for _, fd := range c.decl.Fields {
		if _, aliased := aliases[fd.Name]; aliased {
			continue
		}
		if p.Types.Base(c.Fields[fd.Name]) == TypeLock {
			p.Locks.Define(FieldLockName(c, fd.Name))
		}
	}
	for _, fd := range c.decl.Fields {
		field := fd.Name
		target, aliased := aliases[field]
		if !aliased {
			continue
		}
		owner, t, ok := p.FieldOwner(c, target)
		if !ok || p.Types.Base(t) != TypeLock {
			p.Locks.Define(FieldLockName(c, field))
			continue
		}
		p.Locks.Alias(FieldLockName(c, field), FieldLockName(owner, target))
	}
}

// lockViewTarget returns the field name x in initializers of the form
// x.readLock() or this.x.writeLock().
func lockViewTarget(init *Expr) string {
	if init == nil || init.Kind != ExprInvocation || !IsLockView(init.Name) {
		return ""
	}
	r := init.Receiver
	switch {
	case r == nil:
		return ""
	case r.Kind == ExprIdentifier:
		return r.Name
	case r.Kind == ExprMemberAccess && r.Receiver != nil && r.Receiver.Kind == ExprThis:
		return r.Name
	}
	return ""
}

func (b *Builder) newFunction(p *Program, c *Class, md *MethodDecl) *Function {
	fn := &Function{
		Name:         md.Name,
		Class:        c,
		Abstract:     md.Abstract,
		Static:       md.Static,
		Synchronized: md.Synchronized,
		Variadic:     md.Variadic,
		Constructor:  md.Constructor,
		Body:         md.Body,
		File:         c.File,
		Line:         md.Line,
	}
	if c.IsInterface() && md.Body == nil && !md.Static {
		fn.Abstract = true
	}
	p.addFunction(fn)
	if len(md.TypeParams) > 0 {
		tps := make(map[string]bool, len(md.TypeParams))
		for _, tp := range md.TypeParams {
			tps[tp] = true
		}
		p.typeParams[fn] = tps
	}

	switch {
	case md.Constructor:
		fn.Name = c.Name
		fn.Return = c.Type
	case md.Return != nil:
		fn.Return = p.ResolveTypeRef(*md.Return, c, fn)
	default:
		fn.Return = TypeVoid
	}
	b.bindParams(p, fn, md.Params)

	if fn.Synchronized {
		name := ThisMonitorName(c)
		if fn.Static {
			name = ClassMonitorName(c)
		}
		p.syncLocks[fn.ID] = p.Locks.Define(name).ID
	}
	b.bindBody(p, fn, fn.Body)
	return fn
}

func (b *Builder) bindParams(p *Program, fn *Function, params []ParamDecl) {
	for i, pd := range params {
		t := TypeID(0)
		if !pd.Type.IsVar() {
			t = p.ResolveTypeRef(pd.Type, fn.Class, fn)
			if fn.Variadic && i == len(params)-1 && pd.Type.Dims == 0 {
				t = p.Types.Compound(t, TypeArray)
			}
		}
		fn.Params = append(fn.Params, t)
		fn.ParamNames = append(fn.ParamNames, pd.Name)
		fn.DeclareLocal(pd.Name, t)
	}
}

// bindBody declares the locals of fn, synthesizes lambda functions and
// assigns monitor locks to synchronized blocks.
func (b *Builder) bindBody(p *Program, fn *Function, body []*Stmt) {
	for _, s := range body {
		if s == nil {
			continue
		}
		b.bindLambdas(p, fn, s.Expr)
		switch s.Kind {
		case StmtLocal:
			t := TypeID(0)
			if s.Type != nil && !s.Type.IsVar() {
				t = p.ResolveTypeRef(*s.Type, fn.Class, fn)
			}
			fn.DeclareLocal(s.Name, t)
		case StmtSync:
			p.monitors[s] = p.Locks.Define(b.monitorName(p, fn, s)).ID
			b.bindBody(p, fn, s.Body)
		}
	}
}

func (b *Builder) bindLambdas(p *Program, fn *Function, e *Expr) {
	e.Walk(func(x *Expr) bool {
		if x.Kind != ExprLambda || x.Lambda == nil {
			return true
		}
		lf := &Function{
			Name:      fmt.Sprintf("lambda$%d", x.Line),
			Class:     fn.Class,
			Enclosing: fn,
			Return:    TypeObject,
			Lambda:    true,
			Static:    fn.Static,
			Body:      x.Lambda.Body,
			File:      fn.File,
			Line:      x.Line,
		}
		p.addFunction(lf)
		p.lambdas[x] = lf
		b.bindParams(p, lf, x.Lambda.Params)
		b.bindBody(p, lf, lf.Body)
		return false
	})
}

func (b *Builder) monitorName(p *Program, fn *Function, s *Stmt) string {
	m := s.Expr
	c := fn.Class
	callSite := fmt.Sprintf("monitor:%s.%s@%d", c.QualifiedName, fn.Name, s.Line)
	if m == nil {
		return callSite
	}
	switch m.Kind {
	case ExprThis:
		return ThisMonitorName(c)
	case ExprLiteral:
		if m.Literal == LitClass && m.Type != nil {
			if target := p.LookupClass(m.Type.Name, c); target != nil {
				return ClassMonitorName(target)
			}
			return "monitor:" + m.Type.Name + ".class"
		}
	case ExprIdentifier:
		if _, local := fn.Local(m.Name); local {
			break
		}
		for k := c; k != nil; k = k.Parent {
			if owner, _, ok := p.FieldOwner(k, m.Name); ok {
				return "monitor:" + FieldLockName(owner, m.Name)
			}
		}
	case ExprMemberAccess:
		if m.Receiver != nil && m.Receiver.Kind == ExprThis {
			if owner, _, ok := p.FieldOwner(c, m.Name); ok {
				return "monitor:" + FieldLockName(owner, m.Name)
			}
		}
	}
	b.logger.Debug("monitor resolved to call site",
		slog.String("function", fn.QualifiedName()),
		slog.Int("line", s.Line))
	return callSite
}
