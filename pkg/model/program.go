package model

import (
	"sort"
	"strings"
)

// Program is the linked, immutable model of every analyzed class. It is
// produced by Builder and read by the downstream analyses.
type Program struct {
	Types *TypeTable
	Locks *LockTable

	classes    map[string]*Class
	classList  []*Class
	bySimple   map[string][]*Class
	subclasses map[*Class][]*Class
	functions  []*Function
	lambdas    map[*Expr]*Function
	monitors   map[*Stmt]LockID
	syncLocks  map[FunctionID]LockID
	typeParams map[*Function]map[string]bool
}

func newProgram() *Program {
	return &Program{
		Types:      NewTypeTable(),
		Locks:      NewLockTable(),
		classes:    make(map[string]*Class),
		bySimple:   make(map[string][]*Class),
		subclasses: make(map[*Class][]*Class),
		lambdas:    make(map[*Expr]*Function),
		monitors:   make(map[*Stmt]LockID),
		syncLocks:  make(map[FunctionID]LockID),
		typeParams: make(map[*Function]map[string]bool),
	}
}

// Classes returns every class in declaration order.
func (p *Program) Classes() []*Class {
	return p.classList
}

// Class finds a class by qualified name.
func (p *Program) Class(qualified string) *Class {
	return p.classes[qualified]
}

// Functions returns every function indexed by FunctionID.
func (p *Program) Functions() []*Function {
	return p.functions
}

// Function returns the function with the given id, or nil.
func (p *Program) Function(id FunctionID) *Function {
	if id < 0 || int(id) >= len(p.functions) {
		return nil
	}
	return p.functions[id]
}

// LambdaFunction returns the function synthesized for a lambda expression.
func (p *Program) LambdaFunction(e *Expr) *Function {
	return p.lambdas[e]
}

// MonitorLock returns the lock of a synchronized block.
func (p *Program) MonitorLock(s *Stmt) LockID {
	if id, ok := p.monitors[s]; ok {
		return id
	}
	return UnknownLock
}

// SyncLock returns the monitor acquired by a synchronized method, or zero.
func (p *Program) SyncLock(fn *Function) LockID {
	return p.syncLocks[fn.ID]
}

// Subclasses returns the direct subclasses and implementors of c.
func (p *Program) Subclasses(c *Class) []*Class {
	return p.subclasses[c]
}

// Descendants returns every transitive subclass of c, breadth first.
func (p *Program) Descendants(c *Class) []*Class {
	seen := map[*Class]bool{c: true}
	var out []*Class
	queue := []*Class{c}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, sub := range p.subclasses[cur] {
			if seen[sub] {
				continue
			}
			seen[sub] = true
			out = append(out, sub)
			queue = append(queue, sub)
		}
	}
	return out
}

// Superclass returns the program superclass of c, or nil.
func (p *Program) Superclass(c *Class) *Class {
	if len(c.Supers) == 0 {
		return nil
	}
	return p.Types.Class(c.Supers[0])
}

// Supertypes returns the program classes among c's direct supertypes.
func (p *Program) Supertypes(c *Class) []*Class {
	var out []*Class
	for _, s := range c.Supers {
		if sc := p.Types.Class(s); sc != nil {
			out = append(out, sc)
		}
	}
	return out
}

// Ancestry returns c followed by all of its transitive supertypes,
// superclass chain first.
func (p *Program) Ancestry(c *Class) []*Class {
	seen := map[*Class]bool{}
	var out []*Class
	var visit func(*Class)
	visit = func(k *Class) {
		if k == nil || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
		for _, s := range p.Supertypes(k) {
			visit(s)
		}
	}
	visit(c)
	return out
}

// IsSubclass reports whether c is ancestor or inherits from it.
func (p *Program) IsSubclass(c, ancestor *Class) bool {
	for _, k := range p.Ancestry(c) {
		if k == ancestor {
			return true
		}
	}
	return false
}

// FieldOwner finds the class declaring field name, searching c and its
// supertypes.
func (p *Program) FieldOwner(c *Class, name string) (*Class, TypeID, bool) {
	for _, k := range p.Ancestry(c) {
		if t, ok := k.Fields[name]; ok {
			return k, t, true
		}
	}
	return nil, 0, false
}

// IsEnumConstant reports whether name is an enum constant of c or one of
// its supertypes.
func (p *Program) IsEnumConstant(c *Class, name string) bool {
	for _, k := range p.Ancestry(c) {
		if k.EnumConstants[name] {
			return true
		}
	}
	return false
}

// LookupClass resolves a possibly qualified class name as seen from inside
// from. A nil from searches globally.
func (p *Program) LookupClass(name string, from *Class) *Class {
	if name == "" {
		return nil
	}
	if c, ok := p.classes[name]; ok {
		return c
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		outer := p.LookupClass(name[:i], from)
		for _, part := range strings.Split(name[i+1:], ".") {
			if outer == nil {
				break
			}
			outer = outer.Nested[part]
		}
		if outer != nil {
			return outer
		}
		return p.uniqueSuffix(name)
	}

	for c := from; c != nil; c = c.Parent {
		if c.Name == name {
			return c
		}
		for _, k := range p.Ancestry(c) {
			if n := k.Nested[name]; n != nil {
				return n
			}
		}
	}
	if from != nil {
		top := from.Outermost()
		if q, ok := top.imports[name]; ok {
			if c := p.classes[q]; c != nil {
				return c
			}
		}
		if c := p.classes[qualify(top.Package, name)]; c != nil {
			return c
		}
		for _, pkg := range top.wildcards() {
			if c := p.classes[qualify(pkg, name)]; c != nil {
				return c
			}
		}
	}
	var top []*Class
	for _, c := range p.bySimple[name] {
		if c.Parent == nil {
			top = append(top, c)
		}
	}
	if len(top) == 1 {
		return top[0]
	}
	return nil
}

func (p *Program) uniqueSuffix(name string) *Class {
	var found *Class
	suffix := "." + name
	for q, c := range p.classes {
		if strings.HasSuffix(q, suffix) {
			if found != nil {
				return nil
			}
			found = c
		}
	}
	return found
}

// ResolveTypeRef maps a textual type to a TypeID as seen from class from
// and, optionally, function fn whose type parameters behave as object.
func (p *Program) ResolveTypeRef(ref TypeRef, from *Class, fn *Function) TypeID {
	if ref.Dims > 0 {
		elem := ref
		elem.Dims = 0
		return p.Types.Compound(p.ResolveTypeRef(elem, from, fn), TypeArray)
	}
	for f := fn; f != nil; f = f.Enclosing {
		if p.typeParams[f][ref.Name] {
			return TypeObject
		}
	}
	for c := from; c != nil; c = c.Parent {
		if c.decl == nil {
			continue
		}
		for i, tp := range c.decl.TypeParams {
			if tp == ref.Name && i < len(c.Masks) {
				return c.Masks[i]
			}
		}
	}
	args := make([]TypeID, 0, len(ref.Args)+1)
	for _, a := range ref.Args {
		args = append(args, p.ResolveTypeRef(a, from, fn))
	}
	if c := p.LookupClass(ref.Name, from); c != nil {
		if len(args) == 0 {
			return c.Type
		}
		return p.Types.Compound(append(args, c.Type)...)
	}
	if id, ok := LookupBuiltin(ref.Name); ok {
		if !IsCollectionKind(id) {
			return id
		}
		if len(args) == 0 {
			args = append(args, TypeObject)
		}
		return p.Types.Compound(append(args, id)...)
	}
	return p.Types.Ignore(ref.Name)
}

// IsCollectionKind reports whether a base kind takes type arguments.
func IsCollectionKind(id TypeID) bool {
	switch id {
	case TypeSet, TypeList, TypeMap, TypeStack, TypePriorityQueue,
		TypeReference, TypeArray, TypePair:
		return true
	}
	return false
}

func (p *Program) addClass(c *Class) {
	p.classes[c.QualifiedName] = c
	p.classList = append(p.classList, c)
	p.bySimple[c.Name] = append(p.bySimple[c.Name], c)
}

func (p *Program) addFunction(fn *Function) {
	fn.ID = FunctionID(len(p.functions))
	p.functions = append(p.functions, fn)
}

func (p *Program) sortSubclasses() {
	for k, subs := range p.subclasses {
		sort.SliceStable(subs, func(i, j int) bool {
			return subs[i].QualifiedName < subs[j].QualifiedName
		})
		p.subclasses[k] = subs
	}
}

func (c *Class) wildcards() []string {
	var out []string
	for k, v := range c.imports {
		if strings.HasPrefix(k, "*") {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func qualify(pkg, name string) string {
	if pkg == "" {
		return name
	}
	return pkg + "." + name
}
