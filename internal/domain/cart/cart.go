// Package cart holds the visitor's pending order: an ordered list of items
// shared between the cart pages and the checkout initiator.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

// Item is a product entry with a quantity in the visitor's pending order.
type Item struct {
	ID    string
	Title string
	// Price is the unit price in major currency units (e.g. pounds).
	Price decimal.Decimal
	Count int
}

// Store is a mutable cart shared by every handler serving the same visitor.
// Items keep insertion order. Subscribers are notified with a fresh snapshot
// after each mutation that changed the cart.
type Store struct {
	mu     sync.Mutex
	items  []Item
	subs   map[int]func([]Item)
	nextID int
}

// NewStore returns an empty cart.
func NewStore() *Store {
	return &Store{subs: make(map[int]func([]Item))}
}

// Items returns a snapshot of the cart contents.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Len returns the number of distinct items in the cart.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Add appends item to the cart. If an item with the same ID is already
// present, its count is increased instead and its position is kept.
func (s *Store) Add(item Item) {
	s.mu.Lock()
	if i := s.indexOf(item.ID); i >= 0 {
		s.items[i].Count += item.Count
	} else {
		s.items = append(s.items, item)
	}
	s.notifyLocked()
}

// Remove drops the item with the given ID. Unknown IDs are ignored.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.notifyLocked()
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned function removes the subscription and may be called more than once.
func (s *Store) Subscribe(fn func([]Item)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
}

// notifyLocked releases s.mu and then calls the subscribers, so they are free
// to read the store again.
func (s *Store) notifyLocked() {
	fns := make([]func([]Item), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	snapshot := slices.Clone(s.items)
	s.mu.Unlock()

	for _, fn := range fns {
		fn(slices.Clone(snapshot))
	}
}
