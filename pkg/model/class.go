package model

// Class is a resolved class, interface or enum.
type Class struct {
	Name          string
	QualifiedName string
	Package       string
	Kind          ClassKind
	Type          TypeID
	Abstract      bool
	File          string
	Line          int

	// Parent is the lexically enclosing class for nested classes.
	Parent *Class
	// Supers lists the direct supertypes. When non-empty, Supers[0] is the
	// superclass (TypeObject when none was declared).
	Supers []TypeID
	// Masks are the type ids of the class's type parameters, in order.
	Masks []TypeID

	Fields        map[string]TypeID
	Methods       []*Function
	Constructors  []*Function
	Nested        map[string]*Class
	EnumConstants map[string]bool

	imports map[string]string
	decl    *ClassDecl
}

func newClass(name, qualified string) *Class {
	return &Class{
		Name:          name,
		QualifiedName: qualified,
		Fields:        make(map[string]TypeID),
		Nested:        make(map[string]*Class),
		EnumConstants: make(map[string]bool),
		imports:       make(map[string]string),
	}
}

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool {
	return c.Kind == ClassKindInterface
}

// MethodsNamed returns the methods declared directly on c with the given name.
func (c *Class) MethodsNamed(name string) []*Function {
	var out []*Function
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Outermost returns the top-level class enclosing c.
func (c *Class) Outermost() *Class {
	for c.Parent != nil {
		c = c.Parent
	}
	return c
}

func (c *Class) String() string {
	return c.QualifiedName
}
