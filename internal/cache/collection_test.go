package cache_test

import (
	"reflect"
	"testing"

	"fieldline/internal/cache"
	"fieldline/internal/domain"
)

type item struct {
	ID    string
	Title string
}

func newItems(place cache.Placement) *cache.Collection[item] {
	return cache.NewCollection("items", func(v item) string { return v.ID }, place)
}

func titles(c *cache.Collection[item]) []string {
	var out []string
	for _, v := range c.Items() {
		out = append(out, v.Title)
	}
	return out
}

func TestReplaceAllSkipsInFlightIDs(t *testing.T) {
	c := newItems(cache.Prepend)
	c.ReplaceAll([]item{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}})
	if !c.Acquire("a") {
		t.Fatalf("expected acquire to succeed")
	}
	c.Put(item{ID: "a", Title: "A local"})

	held := c.ReplaceAll([]item{{ID: "a", Title: "A server"}, {ID: "b", Title: "B server"}})
	if !reflect.DeepEqual(held, []string{"a"}) {
		t.Fatalf("unexpected held ids: %v", held)
	}
	if got := titles(c); !reflect.DeepEqual(got, []string{"A local", "B server"}) {
		t.Fatalf("unexpected items: %v", got)
	}

	c.Release("a")
	c.ReplaceAll([]item{{ID: "a", Title: "A server"}})
	if got := titles(c); !reflect.DeepEqual(got, []string{"A server"}) {
		t.Fatalf("unexpected items after release: %v", got)
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	c := newItems(cache.Prepend)
	if !c.Acquire("x") {
		t.Fatalf("first acquire failed")
	}
	if c.Acquire("x") {
		t.Fatalf("second acquire should fail")
	}
	c.Release("x")
	if !c.Acquire("x") {
		t.Fatalf("acquire after release failed")
	}
}

func TestReplaceAllKeepsPendingEntries(t *testing.T) {
	c := newItems(cache.Append)
	c.ReplaceAll([]item{{ID: "1", Title: "first"}})
	ref := domain.NewTempID()
	c.Acquire(ref.ID)
	c.InsertPending(ref, item{ID: ref.ID, Title: "draft"})

	c.ReplaceAll([]item{{ID: "1", Title: "first"}, {ID: "2", Title: "second"}})
	if got := titles(c); !reflect.DeepEqual(got, []string{"first", "second", "draft"}) {
		t.Fatalf("unexpected items: %v", got)
	}
	e, ok := c.Get(ref.ID)
	if !ok || !e.Ref.IsPending() {
		t.Fatalf("pending entry lost: %+v", e)
	}
}

func TestPromoteKeepsPositionAndDedupes(t *testing.T) {
	c := newItems(cache.Append)
	c.ReplaceAll([]item{{ID: "1", Title: "first"}})
	ref := domain.NewTempID()
	c.InsertPending(ref, item{ID: ref.ID, Title: "hello"})
	c.InsertPending(domain.NewTempID(), item{Title: "later"})
	// A refresh delivered the server copy before the send returned.
	c.Put(item{ID: "42", Title: "hello"})

	c.Promote(ref.ID, item{ID: "42", Title: "hello"})
	entries := c.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].Ref != domain.Confirmed("42") {
		t.Fatalf("promoted entry moved: %+v", entries)
	}
	if !entries[2].Ref.IsPending() {
		t.Fatalf("unexpected tail entry: %+v", entries[2])
	}
}

func TestRemoveAndRestorePosition(t *testing.T) {
	c := newItems(cache.Prepend)
	c.ReplaceAll([]item{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}, {ID: "c", Title: "C"}})
	e, idx, ok := c.Remove("b")
	if !ok || idx != 1 {
		t.Fatalf("remove failed: ok=%v idx=%d", ok, idx)
	}
	if got := titles(c); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Fatalf("unexpected items after remove: %v", got)
	}
	c.Restore(e, idx)
	if got := titles(c); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Fatalf("unexpected items after restore: %v", got)
	}
	c.Restore(e, 0)
	if c.Len() != 3 {
		t.Fatalf("restore duplicated an entry")
	}
}

func TestStoreConversationsAndReset(t *testing.T) {
	s := cache.NewStore()
	conv := s.Conversation(cache.PrivateKey("u1"))
	conv.Put(domain.ChatMessage{ID: "m1", Content: "hi"})
	if s.Conversation(cache.PrivateKey("u1")).Len() != 1 {
		t.Fatalf("conversation not shared")
	}
	s.Stats.Set(domain.Stats{TotalIncidents: 3})
	select {
	case name := <-s.Changes():
		if name != "private:u1" {
			t.Fatalf("unexpected change %q", name)
		}
	default:
		t.Fatalf("expected change notification")
	}
	if name := <-s.Changes(); name != s.Stats.Name() {
		t.Fatalf("unexpected change %q", name)
	}

	s.Reset()
	if _, ok := s.Stats.Get(); ok {
		t.Fatalf("stats survived reset")
	}
	if len(s.ConversationKeys()) != 0 {
		t.Fatalf("conversations survived reset")
	}
}

func TestLeaseWritesDroppedAfterClear(t *testing.T) {
	c := newItems(cache.Prepend)
	c.ReplaceAll([]item{{ID: "a", Title: "A"}})
	lease, ok := c.Lease("a")
	if !ok {
		t.Fatalf("expected lease to be granted")
	}
	if !lease.Put(item{ID: "a", Title: "A draft"}) {
		t.Fatalf("put under current epoch should apply")
	}

	c.Clear()
	if !lease.Stale() {
		t.Fatalf("lease should be stale after clear")
	}
	next, ok := c.Lease("a")
	if !ok {
		t.Fatalf("clear should forget the old claim")
	}

	if lease.Put(item{ID: "a", Title: "A late"}) {
		t.Fatalf("put under old epoch should be dropped")
	}
	if lease.Restore(cache.Entry[item]{Ref: domain.Confirmed("b"), Value: item{ID: "b", Title: "B"}}, 0) {
		t.Fatalf("restore under old epoch should be dropped")
	}
	lease.Release()
	if c.Len() != 0 {
		t.Fatalf("expected empty collection, got %v", titles(c))
	}
	if !c.InFlight("a") {
		t.Fatalf("stale release must not drop the new claim")
	}
	next.Release()
	if c.InFlight("a") {
		t.Fatalf("current release should drop the claim")
	}
}
