// Package locktrace walks the call graph from entry points and records, for
// every reachable function, the ordered acquire and release events it
// performs together with the locks held by its callers.
package locktrace

import (
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/locksmith/pkg/model"
)

// Event is a signed lock id: positive acquires, negative releases.
type Event int64

// Acquire returns the event acquiring id.
func Acquire(id model.LockID) Event { return Event(id) }

// Release returns the event releasing id.
func Release(id model.LockID) Event { return -Event(id) }

// Lock returns the lock the event refers to.
func (e Event) Lock() model.LockID {
	if e < 0 {
		return model.LockID(-e)
	}
	return model.LockID(e)
}

// IsAcquire reports whether e acquires its lock.
func (e Event) IsAcquire() bool { return e > 0 }

func (e Event) String() string {
	if e.Lock() == model.UnknownLock {
		if e.IsAcquire() {
			return "+?"
		}
		return "-?"
	}
	if e.IsAcquire() {
		return "+" + strconv.FormatUint(uint64(e.Lock()), 10)
	}
	return "-" + strconv.FormatUint(uint64(e.Lock()), 10)
}

// FunctionTrace is the per-function record. Events starts with one acquire
// per lock open at entry (the first Seed events), followed by the
// function's own operations and the net lock effect of each callee.
type FunctionTrace struct {
	Function model.FunctionID
	// Held is every lock seen held inside the function.
	Held   *roaring.Bitmap
	Events []Event
	Seed   int
	// Origin[i] is the function that performed Events[i]: the caller that
	// took a seeded lock, or the callee behind a net effect.
	Origin []model.FunctionID
}

// Own returns the events after the entry seed.
func (t *FunctionTrace) Own() []Event {
	return t.Events[t.Seed:]
}

// By returns the function that performed event i. Traces built without
// origins attribute every event to their own function.
func (t *FunctionTrace) By(i int) model.FunctionID {
	if i < len(t.Origin) {
		return t.Origin[i]
	}
	return t.Function
}

// Performed reports whether event i is an operation of the function
// itself rather than a seeded lock or a callee's effect.
func (t *FunctionTrace) Performed(i int) bool {
	return i >= t.Seed && t.By(i) == t.Function
}

func (t *FunctionTrace) push(e Event, by model.FunctionID) {
	t.Events = append(t.Events, e)
	t.Origin = append(t.Origin, by)
}

// merge folds o into t: Held grows by union and the longer event sequence
// wins, so neither ever shrinks.
func (t *FunctionTrace) merge(o *FunctionTrace) {
	t.Held.Or(o.Held)
	if len(o.Events) > len(t.Events) {
		t.Events = o.Events
		t.Origin = o.Origin
		t.Seed = o.Seed
	}
}

// hold is an open lock and the function that acquired it.
type hold struct {
	lock model.LockID
	by   model.FunctionID
}

func heldSet(open []hold) *roaring.Bitmap {
	b := roaring.New()
	for _, h := range open {
		if h.lock != model.UnknownLock {
			b.Add(uint32(h.lock))
		}
	}
	return b
}

func clone(open []hold) []hold {
	return append(make([]hold, 0, len(open)+4), open...)
}

// releaseLast removes the most recent hold of id from cur.
func releaseLast(cur []hold, id model.LockID) []hold {
	for i := len(cur) - 1; i >= 0; i-- {
		if cur[i].lock == id {
			return append(cur[:i:i], cur[i+1:]...)
		}
	}
	return cur
}

// replay applies the own events of t to a copy of open.
func replay(open []hold, t *FunctionTrace) []hold {
	cur := clone(open)
	for i := t.Seed; i < len(t.Events); i++ {
		if e := t.Events[i]; e.IsAcquire() {
			cur = append(cur, hold{lock: e.Lock(), by: t.By(i)})
		} else {
			cur = releaseLast(cur, e.Lock())
		}
	}
	return cur
}

// netEffect returns the releases of locks open in before but not after,
// then the acquisitions of locks open in after but not before, as the
// events callee left behind.
func netEffect(before, after []hold, callee model.FunctionID) *FunctionTrace {
	remaining := make(map[model.LockID]int, len(after))
	for _, h := range after {
		remaining[h.lock]++
	}
	kept := make(map[model.LockID]int, len(before))
	out := &FunctionTrace{Function: callee}
	for i := len(before) - 1; i >= 0; i-- {
		id := before[i].lock
		if remaining[id] > 0 {
			remaining[id]--
			kept[id]++
			continue
		}
		out.push(Release(id), callee)
	}
	for _, h := range after {
		if kept[h.lock] > 0 {
			kept[h.lock]--
			continue
		}
		out.push(Acquire(h.lock), h.by)
	}
	return out
}
