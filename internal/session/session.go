// Package session holds the per-browser login state and the objects bound to
// it.
package session

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "ledger_session"

var ErrNotAuthenticated = errors.New("session is not authenticated")

// Context is the login state of one browser session. It is passed explicitly
// to whatever needs it.
type Context struct {
	IsLoggedIn bool
	UserID     *int64
}

// LoggedIn returns the context of a session authenticated as userID.
func LoggedIn(userID int64) Context {
	id := userID
	return Context{IsLoggedIn: true, UserID: &id}
}

// Authenticated returns the user id when the context is logged in.
func (c Context) Authenticated() (int64, bool) {
	if !c.IsLoggedIn || c.UserID == nil {
		return 0, false
	}
	return *c.UserID, true
}

// Closer is implemented by values owned by a session.
type Closer interface {
	Close()
}

// Factory builds the value bound to a freshly authenticated session.
type Factory[V Closer] func(Context) (V, error)

type entry[V Closer] struct {
	ctx      Context
	value    V
	lastSeen time.Time
}

// Store maps session ids to their context and bound value. Unauthenticated
// browsers have no entry.
type Store[V Closer] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	factory Factory[V]
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a store whose entries expire after ttl without use.
func NewStore[V Closer](factory Factory[V], ttl time.Duration) *Store[V] {
	return &Store[V]{
		entries: make(map[string]*entry[V]),
		factory: factory,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Login creates a session for userID and returns its id.
func (s *Store[V]) Login(userID int64) (string, error) {
	ctx := LoggedIn(userID)
	v, err := s.factory(ctx)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.entries[id] = &entry[V]{ctx: ctx, value: v, lastSeen: s.now()}
	s.mu.Unlock()
	return id, nil
}

// Lookup returns the context and value for id. Unknown or expired ids yield
// an empty Context and ok=false.
func (s *Store[V]) Lookup(id string) (Context, V, bool) {
	var zero V
	if id == "" {
		return Context{}, zero, false
	}
	s.mu.Lock()
	e, ok := s.entries[id]
	if ok && s.expired(e) {
		delete(s.entries, id)
		s.mu.Unlock()
		e.value.Close()
		return Context{}, zero, false
	}
	if !ok {
		s.mu.Unlock()
		return Context{}, zero, false
	}
	e.lastSeen = s.now()
	s.mu.Unlock()
	return e.ctx, e.value, true
}

// Logout drops id and closes its value.
func (s *Store[V]) Logout(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		e.value.Close()
	}
}

// Sweep evicts expired entries and returns how many were removed.
func (s *Store[V]) Sweep() int {
	s.mu.Lock()
	var stale []*entry[V]
	for id, e := range s.entries {
		if s.expired(e) {
			stale = append(stale, e)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()
	for _, e := range stale {
		e.value.Close()
	}
	return len(stale)
}

// CloseAll drops every session. Used on shutdown.
func (s *Store[V]) CloseAll() {
	s.mu.Lock()
	all := s.entries
	s.entries = make(map[string]*entry[V])
	s.mu.Unlock()
	for _, e := range all {
		e.value.Close()
	}
}

// Len returns the number of live sessions.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[V]) expired(e *entry[V]) bool {
	return s.ttl > 0 && s.now().Sub(e.lastSeen) > s.ttl
}

// IDFromRequest returns the session id cookie value, or "".
func IDFromRequest(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetCookie writes the session cookie.
func SetCookie(w http.ResponseWriter, id string, secure bool, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
