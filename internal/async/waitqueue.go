package async

// waiter is a parked caller. ready is closed exactly once, when the waiter is
// granted or released; granted is only touched under the owner's lock.
type waiter struct {
	ready   chan struct{}
	granted bool
	slot    int // index into waitQueue.slots, -1 once dequeued
}

type waitSlot struct {
	w          *waiter
	prev, next int
}

// waitQueue is a FIFO of parked callers kept in a dense slice of slots linked
// by index. Freed slots are reused. It is not safe for concurrent use; owners
// guard it with their own mutex.
type waitQueue struct {
	slots      []waitSlot
	head, tail int
	free       []int
	n          int
	init       bool
}

func (q *waitQueue) lazyInit() {
	if !q.init {
		q.head, q.tail = -1, -1
		q.init = true
	}
}

func (q *waitQueue) push() *waiter {
	q.lazyInit()
	w := &waiter{ready: make(chan struct{})}

	var idx int
	if n := len(q.free); n > 0 {
		idx = q.free[n-1]
		q.free = q.free[:n-1]
	} else {
		idx = len(q.slots)
		q.slots = append(q.slots, waitSlot{})
	}
	q.slots[idx] = waitSlot{w: w, prev: q.tail, next: -1}
	if q.tail >= 0 {
		q.slots[q.tail].next = idx
	} else {
		q.head = idx
	}
	q.tail = idx
	q.n++
	w.slot = idx
	return w
}

func (q *waitQueue) len() int {
	return q.n
}

func (q *waitQueue) unlink(idx int) *waiter {
	s := q.slots[idx]
	if s.prev >= 0 {
		q.slots[s.prev].next = s.next
	} else {
		q.head = s.next
	}
	if s.next >= 0 {
		q.slots[s.next].prev = s.prev
	} else {
		q.tail = s.prev
	}
	q.slots[idx] = waitSlot{}
	q.free = append(q.free, idx)
	q.n--
	s.w.slot = -1
	return s.w
}

// grant wakes the oldest waiter. It reports false when nobody is waiting.
func (q *waitQueue) grant() bool {
	if q.n == 0 {
		return false
	}
	w := q.unlink(q.head)
	w.granted = true
	close(w.ready)
	return true
}

// remove drops a waiter that gave up. It reports false when the waiter was
// already granted or released.
func (q *waitQueue) remove(w *waiter) bool {
	if w.slot < 0 {
		return false
	}
	q.unlink(w.slot)
	return true
}

// releaseAll wakes every waiter without granting anything.
func (q *waitQueue) releaseAll() {
	for q.n > 0 {
		close(q.unlink(q.head).ready)
	}
	q.slots = q.slots[:0]
	q.free = q.free[:0]
}
