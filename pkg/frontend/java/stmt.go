package java

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/locksmith/pkg/model"
	"github.com/panbanda/locksmith/pkg/parser"
)

func (x *extractor) block(n *sitter.Node) []*model.Stmt {
	var out []*model.Stmt
	for _, c := range parser.NamedChildren(n) {
		out = append(out, x.stmt(c)...)
	}
	return out
}

func (x *extractor) exprStmt(n *sitter.Node) []*model.Stmt {
	e := x.expr(n)
	if e == nil {
		return nil
	}
	s := model.ExprStmt(e)
	s.Line = parser.Line(n)
	return []*model.Stmt{s}
}

func (x *extractor) stmt(n *sitter.Node) []*model.Stmt {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "block", "constructor_body", "switch_block", "switch_block_statement_group", "switch_rule":
		return x.block(n)
	case "expression_statement", "return_statement", "throw_statement", "yield_statement",
		"parenthesized_expression":
		return x.stmt(n.NamedChild(0))
	case "local_variable_declaration":
		return x.locals(n)
	case "explicit_constructor_invocation":
		return x.constructorCall(n)
	case "synchronized_statement":
		var monitor *model.Expr
		if p := parser.ChildOfType(n, "parenthesized_expression"); p != nil {
			monitor = x.expr(p.NamedChild(0))
		}
		s := model.SyncStmt(monitor, x.block(x.field(n, "body"))...)
		s.Line = parser.Line(n)
		return []*model.Stmt{s}
	case "if_statement":
		out := x.stmt(x.field(n, "condition"))
		out = append(out, x.stmt(x.field(n, "consequence"))...)
		return append(out, x.stmt(x.field(n, "alternative"))...)
	case "while_statement":
		return append(x.stmt(x.field(n, "condition")), x.stmt(x.field(n, "body"))...)
	case "do_statement":
		return append(x.stmt(x.field(n, "body")), x.stmt(x.field(n, "condition"))...)
	case "for_statement":
		return x.forStmt(n)
	case "enhanced_for_statement":
		return x.enhancedFor(n)
	case "try_statement", "try_with_resources_statement":
		return x.tryStmt(n)
	case "switch_expression", "switch_statement":
		out := x.stmt(x.field(n, "condition"))
		return append(out, x.stmt(x.field(n, "body"))...)
	case "switch_label":
		return nil
	case "labeled_statement":
		for _, c := range parser.NamedChildren(n) {
			if c.Type() != "identifier" {
				return x.stmt(c)
			}
		}
		return nil
	case "assert_statement":
		var out []*model.Stmt
		for _, c := range parser.NamedChildren(n) {
			out = append(out, x.exprStmt(c)...)
		}
		return out
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
		if cd := x.typeDecl(n); cd != nil {
			if owner := x.current(); owner != nil {
				owner.Classes = append(owner.Classes, cd)
			}
		}
		return nil
	case "break_statement", "continue_statement", "line_comment", "block_comment", ";":
		return nil
	}
	return x.exprStmt(n)
}

func (x *extractor) locals(n *sitter.Node) []*model.Stmt {
	typ := x.typeRef(x.field(n, "type"))
	var out []*model.Stmt
	for _, d := range parser.NamedChildren(n) {
		if d.Type() != "variable_declarator" {
			continue
		}
		t := withDims(typ, x.field(d, "dimensions"), x.src)
		var init *model.Expr
		if v := x.field(d, "value"); v != nil {
			init = x.expr(v)
		}
		s := model.LocalStmt(parser.FieldText(d, "name", x.src), &t, init)
		s.Line = parser.Line(d)
		out = append(out, s)
	}
	return out
}

// constructorCall maps this(...) and super(...) to a creation of the
// current class or its superclass, which binds the matching constructor.
func (x *extractor) constructorCall(n *sitter.Node) []*model.Stmt {
	cd := x.current()
	if cd == nil {
		return nil
	}
	ref := model.Ref(cd.Name)
	if c := x.field(n, "constructor"); c != nil && c.Type() == "super" {
		if cd.Superclass == nil {
			return x.argStmts(x.field(n, "arguments"))
		}
		ref = *cd.Superclass
	}
	e := model.New(ref, x.args(x.field(n, "arguments"))...)
	e.Line = parser.Line(n)
	s := model.ExprStmt(e)
	s.Line = e.Line
	return []*model.Stmt{s}
}

func (x *extractor) argStmts(n *sitter.Node) []*model.Stmt {
	var out []*model.Stmt
	for _, a := range parser.NamedChildren(n) {
		out = append(out, x.exprStmt(a)...)
	}
	return out
}

// forStmt orders the parts as executed: init, condition, body, update.
func (x *extractor) forStmt(n *sitter.Node) []*model.Stmt {
	var init, cond, update []*model.Stmt
	body := x.field(n, "body")
	semis := 0
	for i := range int(n.ChildCount()) {
		c := n.Child(i)
		switch {
		case c.Type() == ";":
			semis++
		case c.Type() == "local_variable_declaration":
			init = append(init, x.locals(c)...)
			semis++
		case !c.IsNamed() || sameNode(c, body):
		case semis == 0:
			init = append(init, x.exprStmt(c)...)
		case semis == 1:
			cond = append(cond, x.exprStmt(c)...)
		default:
			update = append(update, x.exprStmt(c)...)
		}
	}
	out := append(init, cond...)
	out = append(out, x.stmt(body)...)
	return append(out, update...)
}

// enhancedFor declares the loop variable as the next element of the
// iterated value's iterator.
func (x *extractor) enhancedFor(n *sitter.Node) []*model.Stmt {
	typ := withDims(x.typeRef(x.field(n, "type")), x.field(n, "dimensions"), x.src)
	line := parser.Line(n)
	iter := model.Call(x.expr(x.field(n, "value")), "iterator")
	iter.Line = line
	next := model.Call(iter, "next")
	next.Line = line
	s := model.LocalStmt(parser.FieldText(n, "name", x.src), &typ, next)
	s.Line = line
	return append([]*model.Stmt{s}, x.stmt(x.field(n, "body"))...)
}

func (x *extractor) tryStmt(n *sitter.Node) []*model.Stmt {
	var out []*model.Stmt
	if res := x.field(n, "resources"); res != nil {
		for _, r := range parser.NamedChildren(res) {
			out = append(out, x.resource(r)...)
		}
	}
	out = append(out, x.stmt(x.field(n, "body"))...)
	for _, c := range parser.NamedChildren(n) {
		switch c.Type() {
		case "catch_clause":
			out = append(out, x.catchClause(c)...)
		case "finally_clause":
			out = append(out, x.block(parser.ChildOfType(c, "block"))...)
		}
	}
	return out
}

func (x *extractor) resource(n *sitter.Node) []*model.Stmt {
	if n.Type() != "resource" {
		return nil
	}
	name := x.field(n, "name")
	if name == nil {
		return x.exprStmt(n.NamedChild(0))
	}
	t := x.typeRef(x.field(n, "type"))
	var init *model.Expr
	if v := x.field(n, "value"); v != nil {
		init = x.expr(v)
	}
	s := model.LocalStmt(x.text(name), &t, init)
	s.Line = parser.Line(n)
	return []*model.Stmt{s}
}

func (x *extractor) catchClause(n *sitter.Node) []*model.Stmt {
	var out []*model.Stmt
	if p := parser.ChildOfType(n, "catch_formal_parameter"); p != nil {
		t := model.Ref("Throwable")
		if ct := parser.ChildOfType(p, "catch_type"); ct != nil {
			if first := firstType(ct); first != nil {
				t = x.typeRef(first)
			}
		}
		if name := parser.FieldText(p, "name", x.src); name != "" {
			s := model.LocalStmt(name, &t, nil)
			s.Line = parser.Line(p)
			out = append(out, s)
		}
	}
	return append(out, x.stmt(x.field(n, "body"))...)
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
