package cache

import (
	"sync"
	"time"

	applog "ledger/internal/log"
)

// Cleaner is implemented by stores that expire entries on a schedule.
type Cleaner interface {
	CleanExpired() int
}

// CleanerFunc adapts a plain function to Cleaner.
type CleanerFunc func() int

func (f CleanerFunc) CleanExpired() int { return f() }

type registration struct {
	name    string
	cleaner Cleaner
}

// Manager periodically expires entries of the registered stores.
type Manager struct {
	logger *applog.Logger

	mu      sync.Mutex
	caches  []registration
	started bool

	stopCleanup chan struct{}
	cleanupDone chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a new cache manager
func NewManager(logger *applog.Logger) *Manager {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Manager{
		logger:      logger,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a store under name.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	m.caches = append(m.caches, registration{name: name, cleaner: c})
	m.mu.Unlock()
}

// CleanAll runs one cleanup pass over every store and returns the number of
// entries dropped per store name.
func (m *Manager) CleanAll() map[string]int {
	m.mu.Lock()
	caches := append([]registration(nil), m.caches...)
	m.mu.Unlock()

	cleaned := make(map[string]int, len(caches))
	for _, r := range caches {
		n := r.cleaner.CleanExpired()
		cleaned[r.name] += n
		if n > 0 {
			m.logger.Debug("Expired cache entries", "cache", r.name, "count", n)
		}
	}
	return cleaned
}

// StartCleanup begins periodic cleanup of all registered stores. Calling it
// twice has no effect.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanAll()
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup routine and waits for it to return.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.cleanupDone
		}
	})
}
