package java

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/locksmith/pkg/model"
	"github.com/panbanda/locksmith/pkg/parser"
)

var typeNodes = map[string]bool{
	"type_identifier":        true,
	"scoped_type_identifier": true,
	"generic_type":           true,
	"array_type":             true,
	"integral_type":          true,
	"floating_point_type":    true,
	"boolean_type":           true,
	"void_type":              true,
	"annotated_type":         true,
}

func isType(n *sitter.Node) bool {
	return n != nil && typeNodes[n.Type()]
}

// firstType returns the first named child that is a type.
func firstType(n *sitter.Node) *sitter.Node {
	for _, c := range parser.NamedChildren(n) {
		if isType(c) {
			return c
		}
	}
	return nil
}

func (x *extractor) typeList(n *sitter.Node) []model.TypeRef {
	var out []model.TypeRef
	for _, c := range parser.NamedChildren(n) {
		if c.Type() == "type_list" {
			return x.typeList(c)
		}
		if isType(c) {
			out = append(out, x.typeRef(c))
		}
	}
	return out
}

// typeRef converts a type node. Annotations are dropped and nested generic
// arguments of a scoped type keep only the outermost name.
func (x *extractor) typeRef(n *sitter.Node) model.TypeRef {
	if n == nil {
		return model.TypeRef{}
	}
	switch n.Type() {
	case "generic_type":
		var ref model.TypeRef
		for _, c := range parser.NamedChildren(n) {
			switch c.Type() {
			case "type_identifier", "scoped_type_identifier":
				ref.Name = x.typeName(c)
			case "type_arguments":
				ref.Args = x.typeArgs(c)
			}
		}
		return ref
	case "array_type":
		return withDims(x.typeRef(x.field(n, "element")), x.field(n, "dimensions"), x.src)
	case "annotated_type":
		return x.typeRef(firstType(n))
	default:
		return model.TypeRef{Name: x.typeName(n)}
	}
}

func (x *extractor) typeName(n *sitter.Node) string {
	switch n.Type() {
	case "scoped_type_identifier":
		name := ""
		for _, c := range parser.NamedChildren(n) {
			var part string
			switch c.Type() {
			case "type_identifier", "scoped_type_identifier":
				part = x.typeName(c)
			case "generic_type":
				part = x.typeRef(c).Name
			default:
				continue
			}
			if name == "" {
				name = part
			} else {
				name += "." + part
			}
		}
		return name
	case "generic_type":
		return x.typeRef(n).Name
	}
	return x.text(n)
}

func (x *extractor) typeArgs(n *sitter.Node) []model.TypeRef {
	var out []model.TypeRef
	for _, c := range parser.NamedChildren(n) {
		switch {
		case c.Type() == "wildcard":
			bound := firstType(c)
			if bound == nil || parser.HasChildOfType(c, "super") {
				out = append(out, model.Ref("Object"))
			} else {
				out = append(out, x.typeRef(bound))
			}
		case isType(c):
			out = append(out, x.typeRef(c))
		}
	}
	return out
}
