package model

import "strings"

// ExprKind enumerates the normalized expression forms.
type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprIdentifier
	ExprMemberAccess
	ExprInvocation
	ExprBinaryOp
	ExprUnaryOp
	ExprLiteral
	ExprCast
	ExprObjectCreation
	ExprArrayIndex
	ExprTernary
	ExprThis
	ExprSuper
	ExprLambda
)

var exprKindNames = [...]string{
	ExprInvalid:        "invalid",
	ExprIdentifier:     "identifier",
	ExprMemberAccess:   "member",
	ExprInvocation:     "invocation",
	ExprBinaryOp:       "binary",
	ExprUnaryOp:        "unary",
	ExprLiteral:        "literal",
	ExprCast:           "cast",
	ExprObjectCreation: "new",
	ExprArrayIndex:     "index",
	ExprTernary:        "ternary",
	ExprThis:           "this",
	ExprSuper:          "super",
	ExprLambda:         "lambda",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return "invalid"
}

// LiteralKind classifies literal expressions.
type LiteralKind uint8

const (
	LitNone LiteralKind = iota
	LitInt
	LitFloat
	LitChar
	LitString
	LitBool
	LitNull
	// LitClass is a class literal such as Foo.class; Type names the class.
	LitClass
)

// TypeRef is a syntactic reference to a type as written in source.
type TypeRef struct {
	Name string    `json:"name"`
	Args []TypeRef `json:"args,omitempty"`
	Dims int       `json:"dims,omitempty"`
}

// Ref builds a TypeRef.
func Ref(name string, args ...TypeRef) TypeRef {
	return TypeRef{Name: name, Args: args}
}

// IsVar reports whether the reference asks for local type inference.
func (r TypeRef) IsVar() bool {
	return r.Name == "" || r.Name == "var"
}

func (r TypeRef) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Args) > 0 {
		b.WriteByte('<')
		for i, a := range r.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(a.String())
		}
		b.WriteByte('>')
	}
	for i := 0; i < r.Dims; i++ {
		b.WriteString("[]")
	}
	return b.String()
}

// Expr is a normalized expression. Operands holds the sub-expressions of
// binary (left, right), unary (operand), ternary (cond, then, else) and
// array index (array, index) forms.
type Expr struct {
	Kind     ExprKind    `json:"k"`
	Name     string      `json:"n,omitempty"`
	Op       string      `json:"op,omitempty"`
	Literal  LiteralKind `json:"lit,omitempty"`
	Type     *TypeRef    `json:"t,omitempty"`
	Receiver *Expr       `json:"r,omitempty"`
	Args     []*Expr     `json:"a,omitempty"`
	Operands []*Expr     `json:"o,omitempty"`
	Lambda   *LambdaDecl `json:"fn,omitempty"`
	Line     int         `json:"l,omitempty"`
}

// Operand returns the i-th operand or nil.
func (e *Expr) Operand(i int) *Expr {
	if e == nil || i >= len(e.Operands) {
		return nil
	}
	return e.Operands[i]
}

// Walk visits e and its sub-expressions depth first in evaluation order.
// Lambda bodies are not entered. Returning false from fn prunes the subtree.
func (e *Expr) Walk(fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	e.Receiver.Walk(fn)
	for _, a := range e.Args {
		a.Walk(fn)
	}
	for _, o := range e.Operands {
		o.Walk(fn)
	}
}

// HasEffects reports whether evaluating e can produce a call or a lambda.
func (e *Expr) HasEffects() bool {
	found := false
	e.Walk(func(x *Expr) bool {
		switch x.Kind {
		case ExprInvocation, ExprObjectCreation, ExprLambda:
			found = true
		}
		return !found
	})
	return found
}

// Ident builds an identifier expression.
func Ident(name string) *Expr {
	return &Expr{Kind: ExprIdentifier, Name: name}
}

// Call builds an invocation of name on recv. A nil recv is an implicit
// this or static call.
func Call(recv *Expr, name string, args ...*Expr) *Expr {
	return &Expr{Kind: ExprInvocation, Name: name, Receiver: recv, Args: args}
}

// Member builds a field access.
func Member(recv *Expr, name string) *Expr {
	return &Expr{Kind: ExprMemberAccess, Name: name, Receiver: recv}
}

// This builds a this reference.
func This() *Expr {
	return &Expr{Kind: ExprThis}
}

// New builds an object creation.
func New(t TypeRef, args ...*Expr) *Expr {
	return &Expr{Kind: ExprObjectCreation, Type: &t, Args: args}
}

// StmtKind enumerates the statement forms that matter for lock analysis.
// Control flow is flattened by the front end into straight-line sequences.
type StmtKind uint8

const (
	StmtExpr StmtKind = iota + 1
	StmtLocal
	StmtSync
)

// Stmt is a normalized statement. For StmtSync, Expr is the monitor.
type Stmt struct {
	Kind StmtKind `json:"k"`
	Expr *Expr    `json:"e,omitempty"`
	Name string   `json:"n,omitempty"`
	Type *TypeRef `json:"t,omitempty"`
	Body []*Stmt  `json:"b,omitempty"`
	Line int      `json:"l,omitempty"`
}

// ExprStmt wraps an expression statement.
func ExprStmt(e *Expr) *Stmt {
	return &Stmt{Kind: StmtExpr, Expr: e}
}

// LocalStmt declares a local. A nil or var type asks for inference from init.
func LocalStmt(name string, t *TypeRef, init *Expr) *Stmt {
	return &Stmt{Kind: StmtLocal, Name: name, Type: t, Expr: init}
}

// SyncStmt is a synchronized block on monitor.
func SyncStmt(monitor *Expr, body ...*Stmt) *Stmt {
	return &Stmt{Kind: StmtSync, Expr: monitor, Body: body}
}
