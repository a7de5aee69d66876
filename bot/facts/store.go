// Package facts holds the per-conversation fact accumulator and its report rendering.
package facts

// Entry is a single recorded fact.
type Entry struct {
	Category string `json:"category"`
	Value    string `json:"value"`
}

// Store maps categories to values and remembers insertion order.
// It is owned by a single conversation and is not safe for concurrent use.
type Store struct {
	order   []string
	values  map[string]string
	pending string
	hasPend bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]string)}
}

// Set stores value under category. Overwriting keeps the original position.
func (s *Store) Set(category, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	if _, ok := s.values[category]; !ok {
		s.order = append(s.order, category)
	}
	s.values[category] = value
}

// Get returns the value stored under category.
func (s *Store) Get(category string) (string, bool) {
	v, ok := s.values[category]
	return v, ok
}

// Has reports whether category has a value.
func (s *Store) Has(category string) bool {
	_, ok := s.values[category]
	return ok
}

// Delete removes category. Deleting an absent category does nothing.
func (s *Store) Delete(category string) {
	if !s.Has(category) {
		return
	}
	delete(s.values, category)
	for i, k := range s.order {
		if k == category {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Clear drops every fact and the pending category.
func (s *Store) Clear() {
	s.order = nil
	s.values = make(map[string]string)
	s.ClearPending()
}

// Len returns the number of recorded facts.
func (s *Store) Len() int {
	return len(s.order)
}

// Entries returns a copy of the facts in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, Entry{Category: k, Value: s.values[k]})
	}
	return out
}

// SetPending marks category as awaiting a value.
func (s *Store) SetPending(category string) {
	s.pending = category
	s.hasPend = true
}

// Pending returns the category awaiting a value, if any.
func (s *Store) Pending() (string, bool) {
	return s.pending, s.hasPend
}

// ClearPending forgets the pending category.
func (s *Store) ClearPending() {
	s.pending = ""
	s.hasPend = false
}
