package crdt

// GSet is a grow-only set. Merge is set union.
type GSet[K comparable] struct {
	items map[K]struct{}
}

func NewGSet[K comparable]() *GSet[K] {
	return &GSet[K]{items: make(map[K]struct{})}
}

// Add inserts k and reports whether it was absent.
func (s *GSet[K]) Add(k K) bool {
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = struct{}{}
	return true
}

func (s *GSet[K]) Has(k K) bool {
	_, ok := s.items[k]
	return ok
}

func (s *GSet[K]) Len() int {
	return len(s.items)
}

func (s *GSet[K]) Merge(other *GSet[K]) {
	if other == nil {
		return
	}
	for k := range other.items {
		s.items[k] = struct{}{}
	}
}

// Items returns the members in unspecified order.
func (s *GSet[K]) Items() []K {
	items := make([]K, 0, len(s.items))
	for k := range s.items {
		items = append(items, k)
	}
	return items
}

func (s *GSet[K]) Clone() *GSet[K] {
	c := &GSet[K]{items: make(map[K]struct{}, len(s.items))}
	for k := range s.items {
		c.items[k] = struct{}{}
	}
	return c
}

func (s *GSet[K]) Equal(other *GSet[K]) bool {
	if len(s.items) != len(other.items) {
		return false
	}
	for k := range s.items {
		if _, ok := other.items[k]; !ok {
			return false
		}
	}
	return true
}
