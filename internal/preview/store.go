// Package preview keeps the receipt images chosen in the upload dialog so
// the browser can show them before they are sent to the backend.
//
// Handles are released explicitly when the dialog closes. Entries that are
// never released fall out through size-based LRU eviction or their TTL.
package preview

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("preview image too large")

// Image is a stored preview.
type Image struct {
	ContentType string
	Data        []byte
}

type entry struct {
	handle    string
	img       Image
	expiresAt time.Time
}

// Store is an LRU of preview images with TTL and size-based eviction.
type Store struct {
	mu       sync.Mutex
	maxItems int
	maxBytes int
	ttl      time.Duration
	items    map[string]*list.Element
	lru      *list.List
	now      func() time.Time
}

// NewStore creates a store holding at most maxItems images of at most
// maxBytes each (0 means unbounded size).
func NewStore(maxItems, maxBytes int, ttl time.Duration) *Store {
	if maxItems <= 0 {
		maxItems = 1
	}
	return &Store{
		maxItems: maxItems,
		maxBytes: maxBytes,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Put stores img and returns its handle.
func (s *Store) Put(img Image) (string, error) {
	if s.maxBytes > 0 && len(img.Data) > s.maxBytes {
		return "", ErrTooLarge
	}
	handle := uuid.NewString()
	data := make([]byte, len(img.Data))
	copy(data, img.Data)

	s.mu.Lock()
	defer s.mu.Unlock()

	elem := s.lru.PushFront(&entry{
		handle:    handle,
		img:       Image{ContentType: img.ContentType, Data: data},
		expiresAt: s.now().Add(s.ttl),
	})
	s.items[handle] = elem

	for s.lru.Len() > s.maxItems {
		if oldest := s.lru.Back(); oldest != nil {
			s.removeElement(oldest)
		}
	}
	return handle, nil
}

// Get returns the image for handle if it is still held.
func (s *Store) Get(handle string) (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[handle]
	if !ok {
		return Image{}, false
	}
	e := elem.Value.(*entry)
	if s.ttl > 0 && s.now().After(e.expiresAt) {
		s.removeElement(elem)
		return Image{}, false
	}
	s.lru.MoveToFront(elem)
	return e.img, true
}

// Release drops handle. Releasing an unknown handle is a no-op.
func (s *Store) Release(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[handle]; ok {
		s.removeElement(elem)
	}
}

func (s *Store) removeElement(elem *list.Element) {
	delete(s.items, elem.Value.(*entry).handle)
	s.lru.Remove(elem)
}

// CleanExpired removes expired entries and returns how many were dropped.
func (s *Store) CleanExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var stale []*list.Element
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*entry).expiresAt) {
			stale = append(stale, elem)
		}
	}
	for _, elem := range stale {
		s.removeElement(elem)
	}
	return len(stale)
}

// Len returns the number of held images.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
