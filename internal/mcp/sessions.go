package mcp

import (
	"sync"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/mapping"
)

// session is one editing session. The store is not safe for concurrent use,
// so every access goes through mu.
type session struct {
	mu    sync.Mutex
	store *mapping.Store
	path  string // template path relative to the template directory
}

// sessionRegistry maps session ids to their sessions
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) add(store *mapping.Store, path string) *session {
	sess := &session{store: store, path: path}
	r.mu.Lock()
	r.sessions[store.ID()] = sess
	r.mu.Unlock()
	return sess
}

func (r *sessionRegistry) get(id string) (*session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, pdferrors.Newf(pdferrors.ErrorTypeInvalidRequest, "no session with id %q", id)
	}
	return sess, nil
}

func (r *sessionRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// with runs fn while holding the session lock
func (r *sessionRegistry) with(id string, fn func(sess *session) error) error {
	sess, err := r.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess)
}
