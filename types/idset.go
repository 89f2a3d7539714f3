package types

// IDSet is an insertion-ordered set of document identifiers.
// It backs both the working set and the missing set of a resolution run.
// Not safe for concurrent use.
type IDSet struct {
	ids   []string
	index map[string]struct{}
}

// NewIDSet builds a set from ids, collapsing duplicates (first occurrence wins).
func NewIDSet(ids ...string) *IDSet {
	s := &IDSet{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id and reports whether it was new.
func (s *IDSet) Add(id string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

// Contains reports whether id is in the set.
func (s *IDSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Len returns the number of identifiers. A nil set is empty.
func (s *IDSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Slice returns a copy of the identifiers in insertion order.
func (s *IDSet) Slice() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Union returns a new set holding the members of s followed by those of other.
func (s *IDSet) Union(other *IDSet) *IDSet {
	out := NewIDSet(s.Slice()...)
	for _, id := range other.Slice() {
		out.Add(id)
	}
	return out
}
