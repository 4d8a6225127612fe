package model

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// FunctionID identifies a function; it is the function's index in
// Program.Functions.
type FunctionID int32

// Function is a method, constructor or lambda.
type Function struct {
	ID         FunctionID
	Name       string
	Class      *Class
	Enclosing  *Function
	Params     []TypeID
	ParamNames []string
	Return     TypeID

	Abstract     bool
	Static       bool
	Synchronized bool
	Variadic     bool
	Constructor  bool
	Lambda       bool

	Body []*Stmt
	File string
	Line int

	locals map[uint64]TypeID
}

// DeclareLocal records a local or parameter. A zero type marks a declared
// local whose type is not known yet.
func (f *Function) DeclareLocal(name string, t TypeID) {
	if f.locals == nil {
		f.locals = make(map[uint64]TypeID)
	}
	f.locals[xxhash.Sum64String(name)] = t
}

// Local looks name up in f and then in its enclosing functions.
func (f *Function) Local(name string) (TypeID, bool) {
	key := xxhash.Sum64String(name)
	for fn := f; fn != nil; fn = fn.Enclosing {
		if t, ok := fn.locals[key]; ok {
			return t, true
		}
	}
	return 0, false
}

// Arity is the number of declared parameters.
func (f *Function) Arity() int {
	return len(f.Params)
}

// Accepts reports whether a call with n arguments can bind to f.
func (f *Function) Accepts(n int) bool {
	if f.Variadic {
		return n >= len(f.Params)-1
	}
	return n == len(f.Params)
}

// QualifiedName is Class.Name for methods and Class.method$line for lambdas.
func (f *Function) QualifiedName() string {
	if f.Class == nil {
		return f.Name
	}
	return f.Class.QualifiedName + "." + f.Name
}

func (f *Function) String() string {
	return fmt.Sprintf("%s/%d", f.QualifiedName(), len(f.Params))
}
