// Package java turns tree-sitter Java syntax trees into the declaration
// records of package model. Control flow is flattened: every branch of an
// if, loop, switch or try contributes its statements in source order.
package java

import (
	"errors"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/panbanda/locksmith/pkg/model"
	"github.com/panbanda/locksmith/pkg/parser"
)

// ErrNotJava is returned for parse results of another language.
var ErrNotJava = errors.New("java: not a java syntax tree")

// Extract converts a parsed compilation unit.
func Extract(res *parser.ParseResult) (*model.FileDecl, error) {
	if res == nil || res.Tree == nil || res.Language != parser.LangJava {
		return nil, ErrNotJava
	}
	root := res.Root()
	if root == nil || root.Type() != "program" {
		return nil, ErrNotJava
	}
	x := &extractor{src: res.Source}
	file := &model.FileDecl{Path: res.Path, Language: string(parser.LangJava)}
	for _, n := range parser.NamedChildren(root) {
		switch n.Type() {
		case "package_declaration":
			file.Package = x.qualifiedName(n)
		case "import_declaration":
			if imp := x.importName(n); imp != "" {
				file.Imports = append(file.Imports, imp)
			}
		default:
			if cd := x.typeDecl(n); cd != nil {
				file.Classes = append(file.Classes, cd)
			}
		}
	}
	return file, nil
}

type extractor struct {
	src []byte
	// classes is the stack of declarations being filled; anonymous and
	// local classes attach to the innermost one.
	classes []*model.ClassDecl
	anon    int
}

func (x *extractor) text(n *sitter.Node) string {
	return parser.GetNodeText(n, x.src)
}

func (x *extractor) field(n *sitter.Node, name string) *sitter.Node {
	return n.ChildByFieldName(name)
}

func (x *extractor) qualifiedName(n *sitter.Node) string {
	for _, c := range parser.NamedChildren(n) {
		switch c.Type() {
		case "scoped_identifier", "identifier":
			return x.text(c)
		}
	}
	return ""
}

// importName returns "a.b.C" or "a.b.*". Static imports are skipped.
func (x *extractor) importName(n *sitter.Node) string {
	if parser.HasChildOfType(n, "static") {
		return ""
	}
	name := x.qualifiedName(n)
	if name == "" {
		return ""
	}
	if parser.HasChildOfType(n, "asterisk") {
		return name + ".*"
	}
	return name
}

func (x *extractor) current() *model.ClassDecl {
	if len(x.classes) == 0 {
		return nil
	}
	return x.classes[len(x.classes)-1]
}

// typeDecl converts class, interface, enum and record declarations.
func (x *extractor) typeDecl(n *sitter.Node) *model.ClassDecl {
	cd := &model.ClassDecl{Line: parser.Line(n)}
	switch n.Type() {
	case "class_declaration":
		cd.Kind = model.ClassKindClass
	case "interface_declaration":
		cd.Kind = model.ClassKindInterface
	case "enum_declaration":
		cd.Kind = model.ClassKindEnum
	case "record_declaration":
		cd.Kind = model.ClassKindClass
	default:
		return nil
	}
	cd.Name = parser.FieldText(n, "name", x.src)
	mods := x.modifiers(n)
	cd.Abstract = mods["abstract"]
	cd.TypeParams = x.typeParams(x.field(n, "type_parameters"))

	if sup := x.field(n, "superclass"); sup != nil {
		if t := firstType(sup); t != nil {
			ref := x.typeRef(t)
			cd.Superclass = &ref
		}
	}
	if ifaces := x.field(n, "interfaces"); ifaces != nil {
		cd.Interfaces = append(cd.Interfaces, x.typeList(ifaces)...)
	}
	if ext := parser.ChildOfType(n, "extends_interfaces"); ext != nil {
		cd.Interfaces = append(cd.Interfaces, x.typeList(ext)...)
	}
	if n.Type() == "record_declaration" {
		for _, p := range x.params(x.field(n, "parameters")) {
			cd.Fields = append(cd.Fields, &model.FieldDecl{Name: p.Name, Type: p.Type, Line: cd.Line})
		}
	}

	x.classes = append(x.classes, cd)
	defer func() { x.classes = x.classes[:len(x.classes)-1] }()
	x.body(cd, x.field(n, "body"))
	return cd
}

func (x *extractor) body(cd *model.ClassDecl, body *sitter.Node) {
	if body == nil {
		return
	}
	for _, m := range parser.NamedChildren(body) {
		switch m.Type() {
		case "enum_constant":
			x.enumConstant(cd, m)
		case "enum_body_declarations":
			x.body(cd, m)
		case "field_declaration", "constant_declaration":
			x.fieldDecl(cd, m)
		case "method_declaration", "constructor_declaration":
			cd.Methods = append(cd.Methods, x.method(cd, m))
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			if nested := x.typeDecl(m); nested != nil {
				cd.Classes = append(cd.Classes, nested)
			}
		}
	}
}

// enumConstant records the constant; a constant with a body becomes an
// anonymous subclass of the enum named after the constant.
func (x *extractor) enumConstant(cd *model.ClassDecl, n *sitter.Node) {
	name := parser.FieldText(n, "name", x.src)
	if name == "" {
		return
	}
	cd.EnumConstants = append(cd.EnumConstants, name)
	body := x.field(n, "body")
	if body == nil {
		return
	}
	sup := model.Ref(cd.Name)
	sub := &model.ClassDecl{Name: name, Superclass: &sup, Anonymous: true, Line: parser.Line(n)}
	x.classes = append(x.classes, sub)
	x.body(sub, body)
	x.classes = x.classes[:len(x.classes)-1]
	cd.Classes = append(cd.Classes, sub)
}

func (x *extractor) fieldDecl(cd *model.ClassDecl, n *sitter.Node) {
	static := x.modifiers(n)["static"] || cd.Kind == model.ClassKindInterface
	typ := x.typeRef(x.field(n, "type"))
	for _, d := range parser.NamedChildren(n) {
		if d.Type() != "variable_declarator" {
			continue
		}
		fd := &model.FieldDecl{
			Name:   parser.FieldText(d, "name", x.src),
			Type:   withDims(typ, x.field(d, "dimensions"), x.src),
			Static: static,
			Line:   parser.Line(d),
		}
		if v := x.field(d, "value"); v != nil {
			fd.Init = x.expr(v)
		}
		cd.Fields = append(cd.Fields, fd)
	}
}

func (x *extractor) method(cd *model.ClassDecl, n *sitter.Node) *model.MethodDecl {
	mods := x.modifiers(n)
	md := &model.MethodDecl{
		Name:         parser.FieldText(n, "name", x.src),
		TypeParams:   x.typeParams(x.field(n, "type_parameters")),
		Static:       mods["static"],
		Synchronized: mods["synchronized"],
		Abstract:     mods["abstract"],
		Line:         parser.Line(n),
	}
	if n.Type() == "constructor_declaration" {
		md.Constructor = true
	} else if t := x.field(n, "type"); t != nil {
		ref := withDims(x.typeRef(t), x.field(n, "dimensions"), x.src)
		md.Return = &ref
	}

	params := x.field(n, "parameters")
	md.Params = x.params(params)
	md.Variadic = parser.ChildOfType(params, "spread_parameter") != nil

	body := x.field(n, "body")
	if body == nil {
		if cd.Kind == model.ClassKindInterface && !md.Static {
			md.Abstract = true
		}
		return md
	}
	md.Body = x.block(body)
	return md
}

func (x *extractor) modifiers(n *sitter.Node) map[string]bool {
	mods := parser.ChildOfType(n, "modifiers")
	if mods == nil {
		return nil
	}
	out := make(map[string]bool, mods.ChildCount())
	for i := range int(mods.ChildCount()) {
		out[mods.Child(i).Type()] = true
	}
	return out
}

func (x *extractor) typeParams(n *sitter.Node) []string {
	var out []string
	for _, tp := range parser.NamedChildren(n) {
		if tp.Type() != "type_parameter" {
			continue
		}
		for _, c := range parser.NamedChildren(tp) {
			if c.Type() == "type_identifier" || c.Type() == "identifier" {
				out = append(out, x.text(c))
				break
			}
		}
	}
	return out
}

func (x *extractor) params(n *sitter.Node) []model.ParamDecl {
	var out []model.ParamDecl
	for _, p := range parser.NamedChildren(n) {
		switch p.Type() {
		case "formal_parameter":
			out = append(out, model.ParamDecl{
				Name: parser.FieldText(p, "name", x.src),
				Type: withDims(x.typeRef(x.field(p, "type")), x.field(p, "dimensions"), x.src),
			})
		case "spread_parameter":
			var pd model.ParamDecl
			for _, c := range parser.NamedChildren(p) {
				switch {
				case c.Type() == "variable_declarator":
					pd.Name = parser.FieldText(c, "name", x.src)
				case c.Type() == "identifier":
					pd.Name = x.text(c)
				case c.Type() == "modifiers":
				case pd.Type.Name == "" && isType(c):
					pd.Type = x.typeRef(c)
				}
			}
			out = append(out, pd)
		}
	}
	return out
}

func (x *extractor) anonymousName() string {
	x.anon++
	return strconv.Itoa(x.anon)
}

// anonymousClass converts the class body of an object creation into a
// nested declaration of the innermost class and returns its name.
func (x *extractor) anonymousClass(super model.TypeRef, body *sitter.Node) string {
	owner := x.current()
	if owner == nil {
		return super.Name
	}
	sub := &model.ClassDecl{
		Name:       x.anonymousName(),
		Superclass: &super,
		Anonymous:  true,
		Line:       parser.Line(body),
	}
	owner.Classes = append(owner.Classes, sub)
	x.classes = append(x.classes, sub)
	x.body(sub, body)
	x.classes = x.classes[:len(x.classes)-1]
	return sub.Name
}

func withDims(t model.TypeRef, dims *sitter.Node, src []byte) model.TypeRef {
	if dims != nil {
		t.Dims += strings.Count(parser.GetNodeText(dims, src), "[")
	}
	return t
}
