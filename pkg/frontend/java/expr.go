package java

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/locksmith/pkg/model"
	"github.com/panbanda/locksmith/pkg/parser"
)

var literalKinds = map[string]model.LiteralKind{
	"decimal_integer_literal":        model.LitInt,
	"hex_integer_literal":            model.LitInt,
	"octal_integer_literal":          model.LitInt,
	"binary_integer_literal":         model.LitInt,
	"decimal_floating_point_literal": model.LitFloat,
	"hex_floating_point_literal":     model.LitFloat,
	"character_literal":              model.LitChar,
	"string_literal":                 model.LitString,
	"text_block":                     model.LitString,
	"true":                           model.LitBool,
	"false":                          model.LitBool,
	"null_literal":                   model.LitNull,
}

// expr converts an expression node. Shapes without a normalized form
// return nil.
func (x *extractor) expr(n *sitter.Node) *model.Expr {
	if n == nil {
		return nil
	}
	e := x.convert(n)
	if e != nil && e.Line == 0 {
		e.Line = parser.Line(n)
	}
	return e
}

func (x *extractor) convert(n *sitter.Node) *model.Expr {
	typ := n.Type()
	if lit, ok := literalKinds[typ]; ok {
		return &model.Expr{Kind: model.ExprLiteral, Literal: lit}
	}
	switch typ {
	case "identifier":
		return model.Ident(x.text(n))
	case "this":
		return model.This()
	case "super":
		return &model.Expr{Kind: model.ExprSuper}
	case "parenthesized_expression":
		return x.expr(n.NamedChild(0))
	case "field_access":
		field := x.field(n, "field")
		if field != nil && field.Type() == "this" {
			return model.This()
		}
		return model.Member(x.expr(x.field(n, "object")), x.text(field))
	case "method_invocation":
		return model.Call(x.expr(x.field(n, "object")), parser.FieldText(n, "name", x.src),
			x.args(x.field(n, "arguments"))...)
	case "object_creation_expression":
		return x.creation(n)
	case "array_creation_expression":
		t := x.typeRef(x.field(n, "type"))
		for _, c := range parser.NamedChildren(n) {
			switch c.Type() {
			case "dimensions_expr":
				t.Dims++
			case "dimensions":
				t = withDims(t, c, x.src)
			}
		}
		return &model.Expr{Kind: model.ExprObjectCreation, Type: &t}
	case "assignment_expression", "binary_expression":
		return &model.Expr{
			Kind:     model.ExprBinaryOp,
			Op:       parser.FieldText(n, "operator", x.src),
			Operands: []*model.Expr{x.expr(x.field(n, "left")), x.expr(x.field(n, "right"))},
		}
	case "instanceof_expression":
		return &model.Expr{
			Kind:     model.ExprBinaryOp,
			Op:       "instanceof",
			Operands: []*model.Expr{x.expr(x.field(n, "left")), nil},
		}
	case "unary_expression":
		return &model.Expr{
			Kind:     model.ExprUnaryOp,
			Op:       parser.FieldText(n, "operator", x.src),
			Operands: []*model.Expr{x.expr(x.field(n, "operand"))},
		}
	case "update_expression":
		op := "++"
		if parser.HasChildOfType(n, "--") {
			op = "--"
		}
		return &model.Expr{Kind: model.ExprUnaryOp, Op: op, Operands: []*model.Expr{x.expr(n.NamedChild(0))}}
	case "ternary_expression":
		return &model.Expr{
			Kind: model.ExprTernary,
			Operands: []*model.Expr{
				x.expr(x.field(n, "condition")),
				x.expr(x.field(n, "consequence")),
				x.expr(x.field(n, "alternative")),
			},
		}
	case "cast_expression":
		t := x.typeRef(x.field(n, "type"))
		return &model.Expr{Kind: model.ExprCast, Type: &t, Operands: []*model.Expr{x.expr(x.field(n, "value"))}}
	case "array_access":
		return &model.Expr{
			Kind:     model.ExprArrayIndex,
			Operands: []*model.Expr{x.expr(x.field(n, "array")), x.expr(x.field(n, "index"))},
		}
	case "class_literal":
		t := x.typeRef(firstType(n))
		return &model.Expr{Kind: model.ExprLiteral, Literal: model.LitClass, Type: &t}
	case "lambda_expression":
		return x.lambda(n)
	case "method_reference":
		return x.methodRef(n)
	}
	return nil
}

func (x *extractor) args(n *sitter.Node) []*model.Expr {
	children := parser.NamedChildren(n)
	if len(children) == 0 {
		return nil
	}
	out := make([]*model.Expr, 0, len(children))
	for _, a := range children {
		if isComment(a) {
			continue
		}
		out = append(out, x.expr(a))
	}
	return out
}

func isComment(n *sitter.Node) bool {
	return n.Type() == "line_comment" || n.Type() == "block_comment"
}

func (x *extractor) creation(n *sitter.Node) *model.Expr {
	t := x.typeRef(x.field(n, "type"))
	args := x.args(x.field(n, "arguments"))
	if body := parser.ChildOfType(n, "class_body"); body != nil {
		t = model.Ref(x.anonymousClass(t, body))
	}
	e := model.New(t, args...)
	if outer := n.NamedChild(0); outer != nil && !isType(outer) && outer.Type() != "type_arguments" &&
		!sameNode(outer, x.field(n, "arguments")) && !sameNode(outer, x.field(n, "type")) {
		e.Receiver = x.expr(outer)
	}
	return e
}

func (x *extractor) lambda(n *sitter.Node) *model.Expr {
	decl := &model.LambdaDecl{}
	if p := x.field(n, "parameters"); p != nil {
		switch p.Type() {
		case "identifier":
			decl.Params = []model.ParamDecl{{Name: x.text(p), Type: model.Ref("var")}}
		case "inferred_parameters":
			for _, id := range parser.NamedChildren(p) {
				decl.Params = append(decl.Params, model.ParamDecl{Name: x.text(id), Type: model.Ref("var")})
			}
		case "formal_parameters":
			decl.Params = x.params(p)
		}
	}
	if body := x.field(n, "body"); body != nil {
		if body.Type() == "block" {
			decl.Body = x.block(body)
		} else {
			decl.Body = x.exprStmt(body)
		}
	}
	return &model.Expr{Kind: model.ExprLambda, Lambda: decl}
}

// methodRef turns recv::name into a lambda calling name on recv. The
// arguments are unknown, so only nullary targets bind.
func (x *extractor) methodRef(n *sitter.Node) *model.Expr {
	children := parser.NamedChildren(n)
	if len(children) == 0 {
		return nil
	}
	recvNode := children[0]
	name := "new"
	if last := children[len(children)-1]; len(children) > 1 && last.Type() == "identifier" {
		name = x.text(last)
	}
	line := parser.Line(n)
	var call *model.Expr
	if name == "new" {
		call = model.New(x.typeRef(recvNode))
	} else {
		var recv *model.Expr
		if isType(recvNode) {
			recv = model.Ident(x.typeRef(recvNode).Name)
		} else {
			recv = x.expr(recvNode)
		}
		call = model.Call(recv, name)
	}
	call.Line = line
	s := model.ExprStmt(call)
	s.Line = line
	return &model.Expr{Kind: model.ExprLambda, Lambda: &model.LambdaDecl{Body: []*model.Stmt{s}}}
}
