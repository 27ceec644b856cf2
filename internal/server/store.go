package server

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/domain"
)

type userRecord struct {
	user     domain.User
	passHash []byte
}

type fault struct {
	status int
	delay  time.Duration
}

// store is the in-memory backend state. Every method takes the lock; callers
// never hold references into the maps.
type store struct {
	mu        sync.Mutex
	users     map[string]*userRecord
	byEmail   map[string]string
	incidents map[string]domain.Incident
	reports   map[string]domain.Report
	persons   map[string]domain.Person
	vacations map[string]domain.VacationRequest
	messages  map[string]domain.ChatMessage
	revoked   map[string]bool
	faults    map[string][]fault
	requests  map[string]int
}

func newStore() *store {
	return &store{
		users:     map[string]*userRecord{},
		byEmail:   map[string]string{},
		incidents: map[string]domain.Incident{},
		reports:   map[string]domain.Report{},
		persons:   map[string]domain.Person{},
		vacations: map[string]domain.VacationRequest{},
		messages:  map[string]domain.ChatMessage{},
		revoked:   map[string]bool{},
		faults:    map[string][]fault{},
		requests:  map[string]int{},
	}
}

func newID() string { return uuid.NewString() }

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

func (s *store) addFault(key string, f fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[key] = append(s.faults[key], f)
}

func (s *store) takeFault(key string) (fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[key]++
	queue := s.faults[key]
	if len(queue) == 0 {
		return fault{}, false
	}
	f := queue[0]
	s.faults[key] = queue[1:]
	return f, true
}

func (s *store) requestCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

func (s *store) revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

func (s *store) isRevoked(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[token]
}

func (s *store) user(id string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return domain.User{}, false
	}
	return rec.user, true
}

func (s *store) userByEmail(email string) (*userRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, false
	}
	rec := *s.users[id]
	return &rec, true
}

// addUser returns false when the email is taken.
func (s *store) addUser(u domain.User, hash []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(u.Email))
	if _, exists := s.byEmail[key]; exists {
		return false
	}
	s.users[u.ID] = &userRecord{user: u, passHash: hash}
	s.byEmail[key] = u.ID
	return true
}

func (s *store) updateUser(id string, fn func(*domain.User)) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[id]
	if !ok {
		return domain.User{}, false
	}
	fn(&rec.user)
	return rec.user, true
}

func (s *store) roster() domain.Roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.Roster{}
	for _, rec := range s.users {
		status := rec.user.Status
		if status == "" {
			status = "offline"
		}
		out[status] = append(out[status], rec.user)
	}
	for status := range out {
		list := out[status]
		sort.Slice(list, func(i, j int) bool { return list[i].Username < list[j].Username })
	}
	return out
}

func (s *store) userCount(online func(domain.User) bool) (total, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.users {
		total++
		if online(rec.user) {
			active++
		}
	}
	return total, active
}

// entity maps share these helpers through generics.

func putEntity[T any](s *store, m map[string]T, id string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m[id] = v
}

func getEntity[T any](s *store, m map[string]T, id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := m[id]
	return v, ok
}

func deleteEntity[T any](s *store, m map[string]T, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := m[id]; !ok {
		return false
	}
	delete(m, id)
	return true
}

// updateEntity applies fn under the lock. fn returns an error to abort.
func updateEntity[T any](s *store, m map[string]T, id string, fn func(*T) error) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := m[id]
	if !ok {
		var zero T
		return zero, false, nil
	}
	if err := fn(&v); err != nil {
		return v, true, err
	}
	m[id] = v
	return v, true, nil
}

func listEntities[T any](s *store, m map[string]T, keep func(T) bool, less func(a, b T) bool) []T {
	s.mu.Lock()
	out := make([]T, 0, len(m))
	for _, v := range m {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
