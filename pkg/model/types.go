// Package model holds the program model shared by the resolver, the call
// graph builder and the lock analyses: types, classes, functions, locks and
// the normalized expression records produced by a language front end.
package model

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TypeID identifies a type for the lifetime of one analysis run.
type TypeID int32

// TypeKind classifies a TypeID.
type TypeKind uint8

const (
	KindInvalid TypeKind = iota
	KindElemental
	KindClass
	KindCompound
	KindMask
	KindIgnored
)

func (k TypeKind) String() string {
	switch k {
	case KindElemental:
		return "elemental"
	case KindClass:
		return "class"
	case KindCompound:
		return "compound"
	case KindMask:
		return "mask"
	case KindIgnored:
		return "ignored"
	default:
		return "invalid"
	}
}

// Elemental types and built-in base kinds. Base kinds are the last component
// of a compound type (List<Foo> is the tuple [Foo, TypeList]).
const (
	TypeInt TypeID = iota + 1
	TypeFloat
	TypeChar
	TypeString
	TypeBool
	TypeNull
	TypeVoid
	TypeLock
	TypeInvocable
	TypeObject

	TypeSet
	TypeList
	TypeMap
	TypeStack
	TypePriorityQueue
	TypeReference
	TypeArray
	TypePair
	TypeOther

	firstDynamicType
)

// ignoredBase starts the contiguous id block used for uninteresting library
// types. Every id at or above it behaves as TypeObject.
const ignoredBase TypeID = 1 << 24

var elementalNames = map[TypeID]string{
	TypeInt:           "int",
	TypeFloat:         "float",
	TypeChar:          "char",
	TypeString:        "string",
	TypeBool:          "bool",
	TypeNull:          "null",
	TypeVoid:          "void",
	TypeLock:          "lock",
	TypeInvocable:     "invocable",
	TypeObject:        "object",
	TypeSet:           "Set",
	TypeList:          "List",
	TypeMap:           "Map",
	TypeStack:         "Stack",
	TypePriorityQueue: "PriorityQueue",
	TypeReference:     "Reference",
	TypeArray:         "Array",
	TypePair:          "Pair",
	TypeOther:         "Other",
}

// IsBaseKind reports whether id is one of the built-in abstract kinds that
// carry a member-access rule table.
func IsBaseKind(id TypeID) bool {
	switch id {
	case TypeSet, TypeList, TypeMap, TypeStack, TypePriorityQueue,
		TypeReference, TypeArray, TypePair, TypeOther,
		TypeString, TypeLock, TypeInvocable:
		return true
	}
	return false
}

type typeInfo struct {
	kind       TypeKind
	name       string
	components []TypeID
	class      *Class
	owner      *Class
	index      int
}

// TypeTable allocates and interns type ids.
type TypeTable struct {
	infos     []typeInfo
	ignored   []string
	byIgnored map[string]TypeID
	compounds map[uint64][]TypeID
}

// NewTypeTable creates a table pre-populated with the elemental types.
func NewTypeTable() *TypeTable {
	t := &TypeTable{
		infos:     make([]typeInfo, firstDynamicType, 256),
		byIgnored: make(map[string]TypeID),
		compounds: make(map[uint64][]TypeID),
	}
	for id, name := range elementalNames {
		t.infos[id] = typeInfo{kind: KindElemental, name: name}
	}
	return t
}

// Len returns the number of non-ignored types allocated so far.
func (t *TypeTable) Len() int {
	return len(t.infos) - 1
}

// IsIgnored reports whether id falls into the ignored range.
func (t *TypeTable) IsIgnored(id TypeID) bool {
	return id >= ignoredBase
}

func (t *TypeTable) info(id TypeID) *typeInfo {
	if id <= 0 || int(id) >= len(t.infos) {
		return nil
	}
	return &t.infos[id]
}

// Kind returns the kind of id.
func (t *TypeTable) Kind(id TypeID) TypeKind {
	if t.IsIgnored(id) {
		if int(id-ignoredBase) < len(t.ignored) {
			return KindIgnored
		}
		return KindInvalid
	}
	if info := t.info(id); info != nil {
		return info.kind
	}
	return KindInvalid
}

// Name returns a human readable name for id.
func (t *TypeTable) Name(id TypeID) string {
	if t.IsIgnored(id) {
		if i := int(id - ignoredBase); i < len(t.ignored) {
			return t.ignored[i]
		}
		return fmt.Sprintf("ignored#%d", id)
	}
	info := t.info(id)
	if info == nil {
		return fmt.Sprintf("type#%d", id)
	}
	if info.kind != KindCompound {
		return info.name
	}
	parts := make([]string, 0, len(info.components)-1)
	for _, c := range info.components[:len(info.components)-1] {
		parts = append(parts, t.Name(c))
	}
	return t.Name(info.components[len(info.components)-1]) + "<" + strings.Join(parts, ",") + ">"
}

func (t *TypeTable) add(info typeInfo) TypeID {
	id := TypeID(len(t.infos))
	t.infos = append(t.infos, info)
	return id
}

// NewClassType allocates the type id of a declared class.
func (t *TypeTable) NewClassType(c *Class) TypeID {
	return t.add(typeInfo{kind: KindClass, name: c.QualifiedName, class: c})
}

// NewMask allocates the id of the index-th type parameter of owner.
func (t *TypeTable) NewMask(owner *Class, index int, name string) TypeID {
	return t.add(typeInfo{kind: KindMask, name: name, owner: owner, index: index})
}

// Ignore returns the ignored-range id for a library type name, allocating it
// on first use.
func (t *TypeTable) Ignore(name string) TypeID {
	if id, ok := t.byIgnored[name]; ok {
		return id
	}
	id := ignoredBase + TypeID(len(t.ignored))
	t.ignored = append(t.ignored, name)
	t.byIgnored[name] = id
	return id
}

// Compound interns the tuple of components. The last component is the base.
// A single component collapses to itself.
func (t *TypeTable) Compound(components ...TypeID) TypeID {
	if len(components) == 0 {
		return TypeObject
	}
	if len(components) == 1 {
		return components[0]
	}
	key := compoundKey(components)
	for _, id := range t.compounds[key] {
		if equalComponents(t.infos[id].components, components) {
			return id
		}
	}
	comps := append([]TypeID(nil), components...)
	id := t.add(typeInfo{kind: KindCompound, components: comps})
	t.compounds[key] = append(t.compounds[key], id)
	return id
}

func compoundKey(components []TypeID) uint64 {
	var buf [4]byte
	d := xxhash.New()
	for _, c := range components {
		binary.LittleEndian.PutUint32(buf[:], uint32(c))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func equalComponents(a, b []TypeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Components returns the non-base components of a compound type, or nil.
func (t *TypeTable) Components(id TypeID) []TypeID {
	info := t.info(id)
	if info == nil || info.kind != KindCompound {
		return nil
	}
	return info.components[:len(info.components)-1]
}

// Base returns the base of a compound type, or id itself.
func (t *TypeTable) Base(id TypeID) TypeID {
	info := t.info(id)
	if info == nil || info.kind != KindCompound {
		return id
	}
	return info.components[len(info.components)-1]
}

// Class returns the class behind a class type or a compound whose base is a
// class type.
func (t *TypeTable) Class(id TypeID) *Class {
	info := t.info(t.Base(id))
	if info == nil || info.kind != KindClass {
		return nil
	}
	return info.class
}

// Mask returns the owner and position of a type parameter id.
func (t *TypeTable) Mask(id TypeID) (*Class, int, bool) {
	info := t.info(id)
	if info == nil || info.kind != KindMask {
		return nil, 0, false
	}
	return info.owner, info.index, true
}

// Result wraps id into a resolution result, mapping the ignored range to
// Ignored and the zero id to Unknown.
func (t *TypeTable) Result(id TypeID) Result {
	switch {
	case id == 0:
		return Unknown()
	case t.IsIgnored(id):
		return Ignored()
	default:
		return Resolved(id)
	}
}

type resultState uint8

const (
	stateUnknown resultState = iota
	stateResolved
	stateIgnored
)

// Result is the outcome of resolving an expression type: Resolved(TypeID),
// Unknown or Ignored.
type Result struct {
	state resultState
	id    TypeID
}

// Resolved wraps a determined type.
func Resolved(id TypeID) Result { return Result{state: stateResolved, id: id} }

// Unknown is the result of an unresolvable expression.
func Unknown() Result { return Result{} }

// Ignored is the result of an expression whose type is an uninteresting
// library type.
func Ignored() Result { return Result{state: stateIgnored} }

func (r Result) IsResolved() bool { return r.state == stateResolved }
func (r Result) IsUnknown() bool  { return r.state == stateUnknown }
func (r Result) IsIgnored() bool  { return r.state == stateIgnored }

// ID returns the resolved id; ok is false for Unknown and Ignored.
func (r Result) ID() (TypeID, bool) {
	return r.id, r.state == stateResolved
}

// IDOr returns the resolved id or def.
func (r Result) IDOr(def TypeID) TypeID {
	if r.state == stateResolved {
		return r.id
	}
	return def
}

// Or returns r when it is resolved, otherwise other when other is resolved,
// otherwise r.
func (r Result) Or(other Result) Result {
	if r.IsResolved() || !other.IsResolved() {
		return r
	}
	return other
}

func (r Result) String() string {
	switch r.state {
	case stateResolved:
		return fmt.Sprintf("resolved(%d)", r.id)
	case stateIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}
