package model

import (
	"math"
	"sort"
)

// LockID identifies a lock. Zero is never allocated.
type LockID uint32

// UnknownLock stands for an acquisition whose lock identity could not be
// determined. It never participates in dependency edges.
const UnknownLock LockID = math.MaxUint32

// Lock is a named lock: a lock-typed field or a monitor.
type Lock struct {
	ID   LockID
	Name string
}

// LockTable maps lock names to ids. Aliases share the id of their target.
type LockTable struct {
	byName map[string]*Lock
	locks  []*Lock
}

// NewLockTable creates an empty table.
func NewLockTable() *LockTable {
	return &LockTable{
		byName: make(map[string]*Lock),
		locks:  []*Lock{nil},
	}
}

// Define returns the lock registered under name, creating it if needed.
func (t *LockTable) Define(name string) *Lock {
	if l, ok := t.byName[name]; ok {
		return l
	}
	l := &Lock{ID: LockID(len(t.locks)), Name: name}
	t.locks = append(t.locks, l)
	t.byName[name] = l
	return l
}

// Alias makes alias resolve to the lock registered under target.
func (t *LockTable) Alias(alias, target string) *Lock {
	l := t.Define(target)
	t.byName[alias] = l
	return l
}

// Lookup finds a lock by name.
func (t *LockTable) Lookup(name string) (*Lock, bool) {
	l, ok := t.byName[name]
	return l, ok
}

// Get returns the lock with the given id, or nil.
func (t *LockTable) Get(id LockID) *Lock {
	if id == 0 || int64(id) >= int64(len(t.locks)) {
		return nil
	}
	return t.locks[id]
}

// Name returns the canonical name of id.
func (t *LockTable) Name(id LockID) string {
	if id == UnknownLock {
		return "<unknown>"
	}
	if l := t.Get(id); l != nil {
		return l.Name
	}
	return "<invalid>"
}

// Len returns the number of distinct locks.
func (t *LockTable) Len() int {
	return len(t.locks) - 1
}

// Locks returns every lock ordered by id.
func (t *LockTable) Locks() []*Lock {
	out := append([]*Lock(nil), t.locks[1:]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FieldLockName is the lock name of a lock-typed field.
func FieldLockName(owner *Class, field string) string {
	return owner.QualifiedName + "." + field
}

// ThisMonitorName is the monitor of an instance of c.
func ThisMonitorName(c *Class) string {
	return "monitor:" + c.QualifiedName + ".this"
}

// ClassMonitorName is the monitor of the class object of c.
func ClassMonitorName(c *Class) string {
	return "monitor:" + c.QualifiedName + ".class"
}
