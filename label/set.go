package label

import "sort"

// IDSet is a set of label identifiers.
type IDSet map[string]struct{}

// NewIDSet creates a set containing the given ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts an id.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

// AddSet inserts every id from other.
func (s IDSet) AddSet(other IDSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Discard removes an id if present.
func (s IDSet) Discard(id string) {
	delete(s, id)
}

// Has reports whether the id is a member.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Clone returns an independent copy. A nil set clones to nil.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Intersect returns a new set with the members present in both.
func (s IDSet) Intersect(other IDSet) IDSet {
	out := make(IDSet)
	for id := range s {
		if other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold exactly the same ids.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexicographic order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
