package cache

import "fieldline/internal/domain"

// Lease is the in-flight claim on one id, bound to the epoch it was taken in.
// Every method is a no-op once the collection has been cleared since.
type Lease[T any] struct {
	c     *Collection[T]
	id    string
	epoch uint64
}

func (l *Lease[T]) ID() string { return l.id }

// Stale reports whether the collection was cleared after the lease was taken.
func (l *Lease[T]) Stale() bool {
	return l.c.Epoch() != l.epoch
}

func (l *Lease[T]) do(fn func()) bool {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	if l.c.epoch != l.epoch {
		return false
	}
	fn()
	return true
}

func (l *Lease[T]) InsertPending(ref domain.Ref, v T) bool {
	return l.do(func() { l.c.insertPendingLocked(ref, v) })
}

func (l *Lease[T]) Put(v T) bool {
	return l.do(func() { l.c.putLocked(v) })
}

func (l *Lease[T]) Promote(tempID string, v T) bool {
	return l.do(func() { l.c.promoteLocked(tempID, v) })
}

func (l *Lease[T]) Remove(id string) (e Entry[T], index int, ok bool) {
	index = -1
	l.do(func() { e, index, ok = l.c.removeLocked(id) })
	return e, index, ok
}

func (l *Lease[T]) Restore(e Entry[T], index int) bool {
	return l.do(func() { l.c.restoreLocked(e, index) })
}

// Release ends the claim. A stale lease leaves the current in-flight set
// alone.
func (l *Lease[T]) Release() {
	l.do(func() { delete(l.c.inflight, l.id) })
}
