package model

// ClassKind distinguishes classes, interfaces and enums.
type ClassKind uint8

const (
	ClassKindClass ClassKind = iota
	ClassKindInterface
	ClassKindEnum
)

func (k ClassKind) String() string {
	switch k {
	case ClassKindInterface:
		return "interface"
	case ClassKindEnum:
		return "enum"
	default:
		return "class"
	}
}

// FileDecl is the declaration record a front end produces for one source
// file. Records are plain data so they can be cached as JSON.
type FileDecl struct {
	Path     string       `json:"path"`
	Language string       `json:"language,omitempty"`
	Package  string       `json:"package,omitempty"`
	Imports  []string     `json:"imports,omitempty"`
	Classes  []*ClassDecl `json:"classes,omitempty"`
}

// ClassDecl declares a class, interface or enum.
type ClassDecl struct {
	Name          string        `json:"name"`
	Kind          ClassKind     `json:"kind,omitempty"`
	TypeParams    []string      `json:"type_params,omitempty"`
	Superclass    *TypeRef      `json:"superclass,omitempty"`
	Interfaces    []TypeRef     `json:"interfaces,omitempty"`
	Fields        []*FieldDecl  `json:"fields,omitempty"`
	Methods       []*MethodDecl `json:"methods,omitempty"`
	Classes       []*ClassDecl  `json:"classes,omitempty"`
	EnumConstants []string      `json:"enum_constants,omitempty"`
	Abstract      bool          `json:"abstract,omitempty"`
	// Anonymous marks a class body attached to an object creation; its
	// Superclass may name an interface.
	Anonymous bool `json:"anonymous,omitempty"`
	Line      int  `json:"line,omitempty"`
}

// FieldDecl declares a field.
type FieldDecl struct {
	Name   string  `json:"name"`
	Type   TypeRef `json:"type"`
	Static bool    `json:"static,omitempty"`
	Init   *Expr   `json:"init,omitempty"`
	Line   int     `json:"line,omitempty"`
}

// ParamDecl declares a formal parameter.
type ParamDecl struct {
	Name string  `json:"name"`
	Type TypeRef `json:"type"`
}

// MethodDecl declares a method or constructor.
type MethodDecl struct {
	Name         string      `json:"name"`
	TypeParams   []string    `json:"type_params,omitempty"`
	Params       []ParamDecl `json:"params,omitempty"`
	Return       *TypeRef    `json:"return,omitempty"`
	Abstract     bool        `json:"abstract,omitempty"`
	Static       bool        `json:"static,omitempty"`
	Synchronized bool        `json:"synchronized,omitempty"`
	Variadic     bool        `json:"variadic,omitempty"`
	Constructor  bool        `json:"constructor,omitempty"`
	Body         []*Stmt     `json:"body,omitempty"`
	Line         int         `json:"line,omitempty"`
}

// LambdaDecl is the parameter list and body of a lambda expression.
type LambdaDecl struct {
	Params []ParamDecl `json:"params,omitempty"`
	Body   []*Stmt     `json:"body,omitempty"`
}
