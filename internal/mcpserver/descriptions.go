package mcpserver

// Tool descriptions with interpretation guidance for LLMs.

func describeAnalyzeDeadlocks() string {
	return `Finds potential deadlocks in Java code: pairs of locks that some code path acquires in one order and another code path acquires in the opposite order.

USE WHEN:
- Reviewing concurrent Java code before a release
- Investigating a hang that looks like lock contention
- Checking that a change did not introduce a new lock ordering

INTERPRETING RESULTS:
- Each deadlock names two locks (lock_a, lock_b) and two functions
- a_then_b acquired lock_b while holding lock_a, b_then_a did the reverse
- Lock names are qualified fields (pkg.Class.field) or monitors (monitor:pkg.Class.this)
- The analysis is static and flow-insensitive within a method: both orders must be reachable from an entry point
- An empty deadlock list means no inverted nesting was reachable from the entry points, not a proof of absence

METRICS RETURNED:
- deadlocks: lock pairs with the implicated functions and their locations
- locks: every lock identity with its id
- dependencies: held/acquired lock nesting relation with witness functions
- summary: files, classes, functions, entry points, functions expanded, locks, nesting edges, pairs`
}

func describeLockDependencies() string {
	return `Lists the lock nesting relation of Java code: for every lock, the locks acquired while it is held.

USE WHEN:
- Documenting or enforcing a global lock order
- Understanding why analyze_deadlocks reported a pair
- Finding locks that stay held across calls

INTERPRETING RESULTS:
- outer was held when inner was acquired; witness is the function that acquired outer
- acquires and releases count the inner events inside one outer window; a difference means inner outlives the window
- outlives is set when inner is still held after outer is released

METRICS RETURNED:
- dependencies: outer, inner, acquires, releases, witness, outlives
- locks: lock identity table`
}
