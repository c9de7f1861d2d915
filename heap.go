package uvloop

import (
	"container/heap"
	"time"
)

// timerHeap orders *Timer by (due, startID): due first, and for timers due
// at the same instant, insertion order. It implements container/heap.Interface
// over a slice of pointers, with each Timer tracking its own live index so
// remove-by-value is O(log n) instead of a linear scan — the idiomatic Go
// substitute for the original's raw parent/child pointer surgery.
type timerHeap struct {
	items []*Timer
}

func (h *timerHeap) Len() int { return len(h.items) }

func (h *timerHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if !a.due.Equal(b.due) {
		return a.due.Before(b.due)
	}
	return a.startID < b.startID
}

func (h *timerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIndex = i
	h.items[j].heapIndex = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIndex = len(h.items)
	h.items = append(h.items, t)
}

func (h *timerHeap) Pop() any {
	old := h.items
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	t.heapIndex = -1
	return t
}

// peek returns the earliest-due timer without removing it, or nil.
func (h *timerHeap) peek() *Timer {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

func (h *timerHeap) insert(t *Timer) {
	heap.Push(h, t)
}

// remove is a no-op if t is not currently in the heap, so a handle that
// races Stop against its own firing never double-removes.
func (h *timerHeap) remove(t *Timer) {
	if t.heapIndex < 0 || t.heapIndex >= len(h.items) || h.items[t.heapIndex] != t {
		return
	}
	heap.Remove(h, t.heapIndex)
}

// popRoot removes and returns the earliest-due timer. Callers must check
// peek() (or Len()) first.
func (h *timerHeap) popRoot() *Timer {
	return heap.Pop(h).(*Timer)
}

// dueIn reports how long until the earliest timer fires, relative to now,
// clamped to zero, or ok=false if the heap is empty.
func (h *timerHeap) dueIn(now time.Time) (time.Duration, bool) {
	t := h.peek()
	if t == nil {
		return 0, false
	}
	d := t.due.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}
