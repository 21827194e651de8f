package network

import (
	"container/list"
	"sync"
)

// seenLimit bounds how many gossip keys are remembered.
const seenLimit = 10_000

// seenSet remembers the most recent gossip keys, transaction ids and block
// hashes, so a message travelling around the mesh is relayed once. The
// oldest key is forgotten first.
type seenSet struct {
	mu    sync.Mutex
	limit int
	items map[string]*list.Element
	order *list.List
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{
		limit: limit,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Add records the key and reports whether it was new.
func (s *seenSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		return false
	}

	s.items[key] = s.order.PushBack(key)

	for s.order.Len() > s.limit {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.items, oldest.Value.(string))
	}

	return true
}

// Forget removes the key so the message can be processed again.
func (s *seenSet) Forget(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[key]; exists {
		s.order.Remove(elem)
		delete(s.items, key)
	}
}
