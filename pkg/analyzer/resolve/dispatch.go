package resolve

import "github.com/panbanda/locksmith/pkg/model"

type matchKind uint8

const (
	noMatch matchKind = iota
	looseMatch
	exactMatch
)

// maxBindDepth bounds generic substitution through supertype chains.
const maxBindDepth = 32

// findMethod looks name up on cls and its supertypes. An exact signature
// match anywhere in the ancestry wins over the nearest compatible one.
func (r *Resolver) findMethod(cls *model.Class, name string, args []model.Result) *model.Function {
	var loose *model.Function
	for _, k := range r.prog.Ancestry(cls) {
		switch m, kind := r.bestOf(k.MethodsNamed(name), args); kind {
		case exactMatch:
			return m
		case looseMatch:
			if loose == nil {
				loose = m
			}
		}
	}
	return loose
}

// declaredMatch considers only the methods declared directly on cls.
func (r *Resolver) declaredMatch(cls *model.Class, name string, args []model.Result) *model.Function {
	m, _ := r.bestOf(cls.MethodsNamed(name), args)
	return m
}

func (r *Resolver) pick(fns []*model.Function, args []model.Result) *model.Function {
	m, _ := r.bestOf(fns, args)
	return m
}

func (r *Resolver) bestOf(fns []*model.Function, args []model.Result) (*model.Function, matchKind) {
	var loose *model.Function
	for _, m := range fns {
		if !m.Accepts(len(args)) {
			continue
		}
		switch r.match(m, args) {
		case exactMatch:
			return m, exactMatch
		case looseMatch:
			if loose == nil {
				loose = m
			}
		}
	}
	if loose != nil {
		return loose, looseMatch
	}
	return nil, noMatch
}

func (r *Resolver) match(m *model.Function, args []model.Result) matchKind {
	kind := exactMatch
	last := len(m.Params) - 1
	for i, a := range args {
		var declared model.TypeID
		if m.Variadic && i >= last {
			variadic := m.Params[last]
			if id, ok := a.ID(); ok && id == variadic && len(args) == len(m.Params) {
				continue
			}
			kind = looseMatch
			if comps := r.types.Components(variadic); len(comps) > 0 {
				declared = comps[0]
			}
		} else {
			declared = m.Params[i]
		}
		if r.skipParam(declared) {
			continue
		}
		id, ok := a.ID()
		if !ok {
			kind = looseMatch
			continue
		}
		if id == declared {
			continue
		}
		kind = looseMatch
		if !r.assignable(id, declared) {
			return noMatch
		}
	}
	return kind
}

// skipParam reports parameter types excluded from compatibility tests:
// unknown, generic and ignored-range types.
func (r *Resolver) skipParam(t model.TypeID) bool {
	if t == 0 || r.types.IsIgnored(t) {
		return true
	}
	_, _, isMask := r.types.Mask(t)
	return isMask
}

func (r *Resolver) assignable(actual, declared model.TypeID) bool {
	switch {
	case declared == model.TypeObject:
		return true
	case actual == model.TypeNull:
		return !isPrimitive(declared)
	case r.types.IsIgnored(actual):
		return true
	case actual == model.TypeChar && declared == model.TypeInt:
		return true
	case (actual == model.TypeInt || actual == model.TypeChar) && declared == model.TypeFloat:
		return true
	}
	if _, _, isMask := r.types.Mask(actual); isMask {
		return true
	}
	ac, dc := r.types.Class(actual), r.types.Class(declared)
	if ac != nil && dc != nil {
		return r.prog.IsSubclass(ac, dc)
	}
	return r.types.Base(actual) == r.types.Base(declared)
}

func isPrimitive(t model.TypeID) bool {
	switch t {
	case model.TypeInt, model.TypeFloat, model.TypeChar, model.TypeBool:
		return true
	}
	return false
}

// bind substitutes type parameters in t with the type arguments carried by
// the receiver type recv.
func (r *Resolver) bind(t, recv model.TypeID, depth int) model.TypeID {
	if depth > maxBindDepth {
		return t
	}
	if owner, idx, ok := r.types.Mask(t); ok {
		args := r.typeArgs(recv, owner, depth+1)
		if idx < len(args) {
			return args[idx]
		}
		return t
	}
	comps := r.types.Components(t)
	if comps == nil {
		return t
	}
	out := make([]model.TypeID, 0, len(comps)+1)
	changed := false
	for _, c := range comps {
		b := r.bind(c, recv, depth+1)
		changed = changed || b != c
		out = append(out, b)
	}
	if !changed {
		return t
	}
	return r.types.Compound(append(out, r.types.Base(t))...)
}

// typeArgs returns the type arguments that recv supplies for owner's type
// parameters, following the supertype chain.
func (r *Resolver) typeArgs(recv model.TypeID, owner *model.Class, depth int) []model.TypeID {
	cls := r.types.Class(recv)
	if cls == nil || depth > maxBindDepth {
		return nil
	}
	if cls == owner {
		return r.types.Components(recv)
	}
	for _, s := range cls.Supers {
		if r.types.Class(s) == nil {
			continue
		}
		if args := r.typeArgs(r.bind(s, recv, depth+1), owner, depth+1); args != nil {
			return args
		}
	}
	return nil
}
