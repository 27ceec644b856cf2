package cache

import (
	"sort"
	"sync"

	"fieldline/internal/domain"
)

// Placement decides where entries that are new to a collection go.
type Placement int

const (
	// Prepend suits newest-first lists such as incidents.
	Prepend Placement = iota
	// Append suits chronological lists such as conversations.
	Append
)

// Entry is one cached entity with its pending/confirmed reference.
type Entry[T any] struct {
	Ref   domain.Ref
	Value T
}

// Collection holds an ordered list of entities keyed by id plus the set of ids
// with an unresolved mutation. All methods are safe for concurrent use and
// return copies.
type Collection[T any] struct {
	name   string
	idOf   func(T) string
	place  Placement
	notify func(string)

	mu       sync.RWMutex
	entries  []Entry[T]
	inflight map[string]struct{}
	version  uint64
	epoch    uint64
}

// NewCollection creates an empty collection. idOf extracts the server id of a
// confirmed value.
func NewCollection[T any](name string, idOf func(T) string, place Placement) *Collection[T] {
	return &Collection[T]{
		name:     name,
		idOf:     idOf,
		place:    place,
		inflight: map[string]struct{}{},
	}
}

func (c *Collection[T]) Name() string { return c.name }

// Version increases on every change.
func (c *Collection[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Items returns the values in display order.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Value
	}
	return out
}

func (c *Collection[T]) Entries() []Entry[T] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry[T], len(c.entries))
	copy(out, c.entries)
	return out
}

// Get finds an entry by temp or server id.
func (c *Collection[T]) Get(id string) (Entry[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.entries[i], true
	}
	return Entry[T]{}, false
}

// Acquire marks id as having an unresolved mutation. It returns false when one
// is already in flight.
func (c *Collection[T]) Acquire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return false
	}
	c.inflight[id] = struct{}{}
	return true
}

func (c *Collection[T]) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

// Epoch increases on every Clear.
func (c *Collection[T]) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Lease acquires id like Acquire and ties the returned lease to the current
// epoch. Once the collection is cleared every write made through the lease is
// dropped, so a mutation that outlives a logout cannot repopulate the cache
// or touch the next session's in-flight ids.
func (c *Collection[T]) Lease(id string) (*Lease[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[id]; busy {
		return nil, false
	}
	c.inflight[id] = struct{}{}
	return &Lease[T]{c: c, id: id, epoch: c.epoch}, true
}

func (c *Collection[T]) InFlight(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, busy := c.inflight[id]
	return busy
}

// InsertPending adds an optimistic entry under a temp reference.
func (c *Collection[T]) InsertPending(ref domain.Ref, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertPendingLocked(ref, v)
}

func (c *Collection[T]) insertPendingLocked(ref domain.Ref, v T) {
	c.insertLocked(Entry[T]{Ref: ref, Value: v})
	c.changedLocked()
}

// Put replaces the confirmed entry with the same id in place, or inserts it.
func (c *Collection[T]) Put(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(v)
}

func (c *Collection[T]) putLocked(v T) {
	e := Entry[T]{Ref: domain.Confirmed(c.idOf(v)), Value: v}
	if i := c.indexLocked(e.Ref.ID); i >= 0 {
		c.entries[i] = e
	} else {
		c.insertLocked(e)
	}
	c.changedLocked()
}

// Promote swaps the pending entry tempID for its canonical value, keeping its
// position. A copy of the same server id already delivered by a refresh is
// dropped.
func (c *Collection[T]) Promote(tempID string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promoteLocked(tempID, v)
}

func (c *Collection[T]) promoteLocked(tempID string, v T) {
	e := Entry[T]{Ref: domain.Confirmed(c.idOf(v)), Value: v}
	pos := -1
	for i, cur := range c.entries {
		if cur.Ref.IsPending() && cur.Ref.ID == tempID {
			pos = i
			break
		}
	}
	if dup := c.confirmedIndexLocked(e.Ref.ID); dup >= 0 {
		if pos < 0 {
			c.entries[dup] = e
			c.changedLocked()
			return
		}
		c.entries = append(c.entries[:dup], c.entries[dup+1:]...)
		if dup < pos {
			pos--
		}
	}
	if pos >= 0 {
		c.entries[pos] = e
	} else {
		c.insertLocked(e)
	}
	c.changedLocked()
}

// Remove drops the entry with id and reports where it was so it can be
// restored.
func (c *Collection[T]) Remove(id string) (Entry[T], int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(id)
}

func (c *Collection[T]) removeLocked(id string) (Entry[T], int, bool) {
	i := c.indexLocked(id)
	if i < 0 {
		return Entry[T]{}, -1, false
	}
	e := c.entries[i]
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	c.changedLocked()
	return e, i, true
}

// Restore puts e back at index, unless a refresh already brought it back.
func (c *Collection[T]) Restore(e Entry[T], index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreLocked(e, index)
}

func (c *Collection[T]) restoreLocked(e Entry[T], index int) {
	if c.indexLocked(e.Ref.ID) >= 0 {
		return
	}
	if index < 0 || index > len(c.entries) {
		index = len(c.entries)
	}
	c.entries = append(c.entries, Entry[T]{})
	copy(c.entries[index+1:], c.entries[index:])
	c.entries[index] = e
	c.changedLocked()
}

// ReplaceAll installs a fresh server snapshot. Ids with an unresolved
// mutation keep their local state: the snapshot value is ignored, and a
// locally removed entry stays removed. Pending entries survive. The held back
// ids are returned.
func (c *Collection[T]) ReplaceAll(items []T) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	local := make(map[string]Entry[T], len(c.entries))
	for _, e := range c.entries {
		local[e.Ref.ID] = e
	}
	var held []string
	seen := make(map[string]struct{}, len(items))
	next := make([]Entry[T], 0, len(items)+len(c.inflight))
	for _, v := range items {
		id := c.idOf(v)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, busy := c.inflight[id]; busy {
			held = append(held, id)
			if e, ok := local[id]; ok {
				next = append(next, e)
			}
			continue
		}
		next = append(next, Entry[T]{Ref: domain.Confirmed(id), Value: v})
	}
	var pending []Entry[T]
	for _, e := range c.entries {
		if _, ok := seen[e.Ref.ID]; ok {
			continue
		}
		_, busy := c.inflight[e.Ref.ID]
		if e.Ref.IsPending() || busy {
			pending = append(pending, e)
		}
	}
	if c.place == Prepend {
		next = append(pending, next...)
	} else {
		next = append(next, pending...)
	}
	c.entries = next
	c.changedLocked()
	sort.Strings(held)
	return held
}

// Clear empties the collection and forgets in-flight ids.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	c.inflight = map[string]struct{}{}
	c.epoch++
	c.changedLocked()
}

func (c *Collection[T]) indexLocked(id string) int {
	for i, e := range c.entries {
		if e.Ref.ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) confirmedIndexLocked(id string) int {
	for i, e := range c.entries {
		if !e.Ref.IsPending() && e.Ref.ID == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) insertLocked(e Entry[T]) {
	if c.place == Prepend {
		c.entries = append([]Entry[T]{e}, c.entries...)
		return
	}
	c.entries = append(c.entries, e)
}

func (c *Collection[T]) changedLocked() {
	c.version++
	if c.notify != nil {
		c.notify(c.name)
	}
}
