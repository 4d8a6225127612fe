package model

import "strings"

// builtinTypes maps well-known library type names to elemental types or base
// kinds. Library types absent from this table land in the ignored range.
var builtinTypes = byName(map[TypeID][]string{
	TypeInt: {
		"int", "long", "short", "byte", "Integer", "Long", "Short", "Byte",
		"BigInteger", "AtomicInteger", "AtomicLong",
	},
	TypeFloat: {
		"float", "double", "Float", "Double", "BigDecimal",
	},
	TypeChar: {
		"char", "Character",
	},
	TypeBool: {
		"boolean", "Boolean", "AtomicBoolean",
	},
	TypeVoid: {
		"void", "Void",
	},
	TypeObject: {
		"Object",
	},
	TypeString: {
		"String", "StringBuilder", "StringBuffer", "CharSequence",
	},
	TypeLock: {
		"Lock", "ReentrantLock", "ReadWriteLock", "ReentrantReadWriteLock",
		"StampedLock", "Semaphore", "ReadLock", "WriteLock",
		"ReentrantReadWriteLock.ReadLock", "ReentrantReadWriteLock.WriteLock",
	},
	TypeInvocable: {
		"Runnable", "Callable", "Function", "BiFunction", "Supplier", "Consumer",
		"BiConsumer", "Predicate", "BiPredicate", "UnaryOperator", "BinaryOperator",
		"Method", "Constructor", "MethodHandle", "ScriptEngine", "Invocable",
	},
	TypeSet: {
		"Set", "HashSet", "TreeSet", "LinkedHashSet", "SortedSet", "NavigableSet",
		"EnumSet", "CopyOnWriteArraySet", "ConcurrentSkipListSet",
	},
	TypeList: {
		"List", "ArrayList", "LinkedList", "Vector", "CopyOnWriteArrayList",
		"Collection", "Iterable", "Queue", "Deque", "ArrayDeque", "BlockingQueue",
		"LinkedBlockingQueue", "ArrayBlockingQueue", "ConcurrentLinkedQueue",
		"ConcurrentLinkedDeque", "Iterator", "ListIterator", "Stream",
	},
	TypeMap: {
		"Map", "HashMap", "TreeMap", "LinkedHashMap", "ConcurrentHashMap",
		"ConcurrentMap", "SortedMap", "NavigableMap", "WeakHashMap",
		"IdentityHashMap", "Hashtable", "EnumMap", "ConcurrentSkipListMap",
	},
	TypeStack: {
		"Stack",
	},
	TypePriorityQueue: {
		"PriorityQueue", "PriorityBlockingQueue",
	},
	TypeReference: {
		"AtomicReference", "WeakReference", "SoftReference", "ThreadLocal",
		"Optional", "Future", "CompletableFuture",
	},
	TypePair: {
		"Map.Entry", "Entry", "Pair",
	},
})

func byName(kinds map[TypeID][]string) map[string]TypeID {
	out := make(map[string]TypeID)
	for id, names := range kinds {
		for _, n := range names {
			out[n] = id
		}
	}
	return out
}

// LookupBuiltin returns the elemental type or base kind registered for a
// library type name. Qualified names are matched on their java.* suffix.
func LookupBuiltin(name string) (TypeID, bool) {
	if id, ok := builtinTypes[name]; ok {
		return id, true
	}
	if strings.HasPrefix(name, "java.") || strings.HasPrefix(name, "javax.") {
		parts := strings.Split(name, ".")
		for i := 1; i < len(parts); i++ {
			if first := parts[i]; first != "" && first[0] >= 'A' && first[0] <= 'Z' {
				id, ok := builtinTypes[strings.Join(parts[i:], ".")]
				return id, ok
			}
		}
	}
	return 0, false
}

// lockAcquire and lockRelease list the lock-typed methods that acquire and
// release, and lockViews the accessors that return a view of the same lock.
var (
	lockAcquire = setOf("lock", "tryLock", "lockInterruptibly",
		"acquire", "acquireUninterruptibly", "tryAcquire")
	lockRelease = setOf("unlock", "release")
	lockViews   = setOf("readLock", "writeLock", "asReadLock", "asWriteLock")
)

// IsLockAcquire reports whether calling name on a lock acquires it.
func IsLockAcquire(name string) bool { return lockAcquire[name] }

// IsLockRelease reports whether calling name on a lock releases it.
func IsLockRelease(name string) bool { return lockRelease[name] }

// IsLockView reports whether name returns a view sharing the receiver's lock.
func IsLockView(name string) bool { return lockViews[name] }

func setOf(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}
