package cache

import (
	"sort"
	"sync"
	"time"

	"fieldline/internal/domain"
)

// Value holds a single aggregate such as dashboard counters.
type Value[T any] struct {
	mu        sync.RWMutex
	v         T
	set       bool
	updatedAt time.Time

	name   string
	notify func(string)
}

func (h *Value[T]) Name() string { return h.name }

func (h *Value[T]) Set(v T) {
	h.mu.Lock()
	h.v, h.set, h.updatedAt = v, true, time.Now()
	h.mu.Unlock()
	if h.notify != nil {
		h.notify(h.name)
	}
}

// Get returns the value and whether it was ever set.
func (h *Value[T]) Get() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.v, h.set
}

func (h *Value[T]) UpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.updatedAt
}

func (h *Value[T]) Clear() {
	h.mu.Lock()
	var zero T
	h.v, h.set, h.updatedAt = zero, false, time.Time{}
	h.mu.Unlock()
}

// Store groups the entity repositories of one client session.
type Store struct {
	Incidents      *Collection[domain.Incident]
	Reports        *Collection[domain.Report]
	Persons        *Collection[domain.Person]
	MyVacations    *Collection[domain.VacationRequest]
	AdminVacations *Collection[domain.VacationRequest]
	Users          *Collection[domain.User]
	Stats          Value[domain.Stats]
	PersonStats    Value[domain.PersonStats]

	changes chan string

	mu            sync.Mutex
	conversations map[string]*Collection[domain.ChatMessage]
}

func NewStore() *Store {
	s := &Store{
		Incidents:      NewCollection("incidents", func(v domain.Incident) string { return v.ID }, Prepend),
		Reports:        NewCollection("reports", func(v domain.Report) string { return v.ID }, Prepend),
		Persons:        NewCollection("persons", func(v domain.Person) string { return v.ID }, Prepend),
		MyVacations:    NewCollection("vacations", func(v domain.VacationRequest) string { return v.ID }, Append),
		AdminVacations: NewCollection("admin_vacations", func(v domain.VacationRequest) string { return v.ID }, Append),
		Users:          NewCollection("users", func(v domain.User) string { return v.ID }, Append),
		changes:        make(chan string, 64),
		conversations:  map[string]*Collection[domain.ChatMessage]{},
	}
	s.Incidents.notify = s.emit
	s.Reports.notify = s.emit
	s.Persons.notify = s.emit
	s.MyVacations.notify = s.emit
	s.AdminVacations.notify = s.emit
	s.Users.notify = s.emit
	s.Stats.name, s.Stats.notify = "stats", s.emit
	s.PersonStats.name, s.PersonStats.notify = "person_stats", s.emit
	return s
}

// Changes delivers the name of each collection that changed. Notifications
// are dropped while the buffer is full.
func (s *Store) Changes() <-chan string { return s.changes }

func (s *Store) emit(name string) {
	select {
	case s.changes <- name:
	default:
	}
}

func PrivateKey(peerID string) string { return "private:" + peerID }
func ChannelKey(name string) string   { return "channel:" + name }

// Conversation returns the message collection for key, creating it on first
// use.
func (s *Store) Conversation(key string) *Collection[domain.ChatMessage] {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[key]
	if !ok {
		c = NewCollection(key, func(m domain.ChatMessage) string { return m.ID }, Append)
		c.notify = s.emit
		s.conversations[key] = c
	}
	return c
}

func (s *Store) ConversationKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.conversations))
	for k := range s.conversations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PendingVacations is the admin view filtered to undecided requests.
func (s *Store) PendingVacations() []domain.VacationRequest {
	var out []domain.VacationRequest
	for _, v := range s.AdminVacations.Items() {
		if v.Status == domain.VacationPending {
			out = append(out, v)
		}
	}
	return out
}

// Reset drops all cached data, used on logout.
func (s *Store) Reset() {
	s.Incidents.Clear()
	s.Reports.Clear()
	s.Persons.Clear()
	s.MyVacations.Clear()
	s.AdminVacations.Clear()
	s.Users.Clear()
	s.Stats.Clear()
	s.PersonStats.Clear()
	s.mu.Lock()
	s.conversations = map[string]*Collection[domain.ChatMessage]{}
	s.mu.Unlock()
}
