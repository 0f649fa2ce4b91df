package registry

import (
	"sync"

	"github.com/PixelOverkilll/last-man-standing-sub000/internal/state"
)

type session struct {
	identity state.Player
	lobby    string
}

// Registry tracks every live connection: its submitted identity and the
// lobby it currently belongs to (at most one). It exists for the process
// lifetime; a connection is added at websocket accept and removed when
// the transport closes.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*session
}

func New() *Registry {
	return &Registry{conns: make(map[string]*session)}
}

func (r *Registry) Add(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &session{}
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// SetIdentity records the identity the client submitted with its latest
// lobby command. The payload is opaque; no verification happens here.
func (r *Registry) SetIdentity(connID string, p state.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.conns[connID]; ok {
		s.identity = p
	}
}

func (r *Registry) Identity(connID string) (state.Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.conns[connID]; ok {
		return s.identity, true
	}
	return state.Player{}, false
}

func (r *Registry) SetLobby(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.conns[connID]; ok {
		s.lobby = code
	}
}

func (r *Registry) Lobby(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.conns[connID]; ok {
		return s.lobby
	}
	return ""
}

// Detach clears a connection's lobby reference but keeps the connection.
func (r *Registry) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.conns[connID]; ok {
		s.lobby = ""
	}
}

// DetachAll clears the lobby reference of every listed connection; used
// when a lobby closes underneath its members.
func (r *Registry) DetachAll(connIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range connIDs {
		if s, ok := r.conns[id]; ok {
			s.lobby = ""
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
