package resolve

import (
	"strings"

	"github.com/panbanda/locksmith/pkg/model"
)

// dynamicCalls are the methods that dispatch dynamically when invoked on an
// invocable receiver.
var dynamicCalls = map[string]bool{
	"invoke":         true,
	"invokeExact":    true,
	"invokeMethod":   true,
	"invokeFunction": true,
	"eval":           true,
	"newInstance":    true,
	"run":            true,
	"call":           true,
	"apply":          true,
	"accept":         true,
	"get":            true,
	"test":           true,
}

func literalType(k model.LiteralKind) model.Result {
	switch k {
	case model.LitInt:
		return model.Resolved(model.TypeInt)
	case model.LitFloat:
		return model.Resolved(model.TypeFloat)
	case model.LitChar:
		return model.Resolved(model.TypeChar)
	case model.LitString:
		return model.Resolved(model.TypeString)
	case model.LitBool:
		return model.Resolved(model.TypeBool)
	case model.LitNull:
		return model.Resolved(model.TypeNull)
	case model.LitClass:
		return model.Resolved(model.TypeOther)
	}
	return model.Unknown()
}

func binaryType(op string, left, right model.Result) model.Result {
	switch op {
	case "==", "!=", "<", ">", "<=", ">=", "&&", "||", "instanceof":
		return model.Resolved(model.TypeBool)
	case "<<", ">>", ">>>":
		return model.Resolved(model.TypeInt)
	case "+", "+=":
		if isType(left, model.TypeString) || isType(right, model.TypeString) {
			return model.Resolved(model.TypeString)
		}
	case "=":
		return determined(right, left)
	}
	return determined(left, right)
}

func isType(r model.Result, t model.TypeID) bool {
	id, ok := r.ID()
	return ok && id == t
}

// heuristic types calls on receivers that could not be resolved, by method
// name alone.
func heuristic(name string, recv model.Result) (model.Result, bool) {
	switch name {
	case "equals", "equalsIgnoreCase":
		return model.Resolved(model.TypeBool), true
	case "toString":
		return model.Resolved(model.TypeString), true
	case "hashCode", "compareTo":
		return model.Resolved(model.TypeInt), true
	case "clone":
		return recv, true
	case "getClass":
		return model.Resolved(model.TypeOther), true
	}
	if strings.HasSuffix(name, "Value") {
		switch strings.TrimSuffix(name, "Value") {
		case "int", "long", "short", "byte":
			return model.Resolved(model.TypeInt), true
		case "float", "double":
			return model.Resolved(model.TypeFloat), true
		case "boolean":
			return model.Resolved(model.TypeBool), true
		case "char":
			return model.Resolved(model.TypeChar), true
		}
	}
	return model.Unknown(), false
}

// builtinCall applies the member-access rules of the built-in base kinds.
func (r *Resolver) builtinCall(name string, recv model.TypeID) model.Result {
	base := r.types.Base(recv)
	comps := r.types.Components(recv)
	arg := func(i int) model.Result {
		if i < len(comps) {
			return r.types.Result(comps[i])
		}
		return model.Resolved(model.TypeObject)
	}
	resolved := model.Resolved
	sameAs := resolved(recv)

	switch name {
	case "size", "length", "indexOf", "lastIndexOf":
		return resolved(model.TypeInt)
	case "isEmpty", "contains", "containsAll", "containsKey", "containsValue",
		"removeAll", "retainAll", "addAll", "startsWith", "endsWith", "matches",
		"isPresent", "isDone", "compareAndSet", "hasNext", "hasPrevious":
		return resolved(model.TypeBool)
	case "clear", "forEach", "set", "ifPresent", "lazySet":
		if base == model.TypeList && name == "set" {
			return arg(0)
		}
		return resolved(model.TypeVoid)
	}

	switch base {
	case model.TypeSet:
		switch name {
		case "add", "remove":
			return resolved(model.TypeBool)
		case "iterator", "stream":
			return resolved(r.types.Compound(arg(0).IDOr(model.TypeObject), model.TypeList))
		case "first", "last", "pollFirst", "pollLast", "ceiling", "floor", "higher", "lower":
			return arg(0)
		case "headSet", "tailSet", "subSet", "descendingSet":
			return sameAs
		}
	case model.TypeList:
		switch name {
		case "add", "offer", "offerFirst", "offerLast":
			return resolved(model.TypeBool)
		case "get", "remove", "getFirst", "getLast", "removeFirst", "removeLast",
			"poll", "pollFirst", "pollLast", "peek", "peekFirst", "peekLast", "pop",
			"element", "next", "previous", "take", "findFirst", "findAny", "orElse":
			return arg(0)
		case "subList", "iterator", "listIterator", "stream", "reversed", "filter",
			"sorted", "distinct", "limit", "skip", "descendingIterator":
			return sameAs
		case "push":
			return resolved(model.TypeVoid)
		case "toArray":
			return resolved(r.types.Compound(arg(0).IDOr(model.TypeObject), model.TypeArray))
		}
	case model.TypeStack:
		switch name {
		case "push", "pop", "peek", "get", "firstElement", "lastElement", "elementAt", "remove":
			return arg(0)
		case "add", "empty":
			return resolved(model.TypeBool)
		case "search":
			return resolved(model.TypeInt)
		case "iterator", "stream":
			return resolved(r.types.Compound(arg(0).IDOr(model.TypeObject), model.TypeList))
		}
	case model.TypePriorityQueue:
		switch name {
		case "poll", "peek", "remove", "element", "take":
			return arg(0)
		case "add", "offer":
			return resolved(model.TypeBool)
		case "iterator", "stream":
			return resolved(r.types.Compound(arg(0).IDOr(model.TypeObject), model.TypeList))
		}
	case model.TypeMap:
		switch name {
		case "get", "put", "remove", "getOrDefault", "putIfAbsent", "computeIfAbsent",
			"computeIfPresent", "compute", "merge", "replace":
			return arg(1)
		case "firstKey", "lastKey", "ceilingKey", "floorKey", "higherKey", "lowerKey":
			return arg(0)
		case "keySet", "navigableKeySet", "descendingKeySet":
			return resolved(r.types.Compound(arg(0).IDOr(model.TypeObject), model.TypeSet))
		case "values":
			return resolved(r.types.Compound(arg(1).IDOr(model.TypeObject), model.TypeList))
		case "entrySet":
			entry := r.types.Compound(arg(0).IDOr(model.TypeObject), arg(1).IDOr(model.TypeObject), model.TypePair)
			return resolved(r.types.Compound(entry, model.TypeSet))
		case "firstEntry", "lastEntry", "ceilingEntry", "floorEntry", "pollFirstEntry", "pollLastEntry":
			return resolved(r.types.Compound(arg(0).IDOr(model.TypeObject), arg(1).IDOr(model.TypeObject), model.TypePair))
		case "headMap", "tailMap", "subMap", "descendingMap":
			return sameAs
		}
	case model.TypePair:
		switch name {
		case "getKey", "getFirst", "getLeft":
			return arg(0)
		case "getValue", "setValue", "getSecond", "getRight":
			return arg(1)
		}
	case model.TypeReference:
		switch name {
		case "get", "getAndSet", "getAndUpdate", "updateAndGet", "orElse", "orElseGet",
			"orElseThrow", "join", "getNow", "getPlain", "getAcquire":
			return arg(0)
		case "map", "filter", "flatMap", "thenApply", "thenCompose":
			return model.Unknown()
		}
	case model.TypeString:
		switch name {
		case "charAt":
			return resolved(model.TypeChar)
		case "compareTo", "compareToIgnoreCase", "codePointAt":
			return resolved(model.TypeInt)
		case "split":
			return resolved(r.types.Compound(model.TypeString, model.TypeArray))
		case "toCharArray":
			return resolved(r.types.Compound(model.TypeChar, model.TypeArray))
		case "getBytes", "chars":
			return resolved(r.types.Compound(model.TypeInt, model.TypeArray))
		case "equalsIgnoreCase", "isBlank", "contentEquals", "regionMatches":
			return resolved(model.TypeBool)
		default:
			if h, ok := heuristic(name, sameAs); ok {
				return h
			}
			return resolved(model.TypeString)
		}
	case model.TypeArray:
		switch name {
		case "clone":
			return sameAs
		case "iterator", "stream":
			return resolved(r.types.Compound(arg(0).IDOr(model.TypeObject), model.TypeList))
		}
	}
	h, _ := heuristic(name, sameAs)
	return h
}
