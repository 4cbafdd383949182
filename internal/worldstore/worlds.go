package worldstore

import "sort"

// Set resolves world ids to stores. It is built once at startup.
type Set struct {
	byID map[string]*Store
}

func NewSet(stores ...*Store) *Set {
	s := &Set{byID: make(map[string]*Store, len(stores))}
	for _, st := range stores {
		s.byID[st.ID()] = st
	}
	return s
}

func (s *Set) Store(id string) (*Store, bool) {
	st, ok := s.byID[id]
	return st, ok
}

func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
