package ws

import "sync"

// Presence is the process-wide online registry: user ID to the ID of their
// most recent live session. A new connection for a user overwrites the
// mapping (last-connected-wins); older sessions stay connected and keep
// receiving room traffic, but the registry only ever points at the latest.
type Presence struct {
	mu       sync.RWMutex
	sessions map[int64]string
}

func NewPresence() *Presence {
	return &Presence{
		sessions: make(map[int64]string),
	}
}

// Connect records sessionID as the user's current session and returns the
// session ID it superseded, if any.
func (p *Presence) Connect(userID int64, sessionID string) (prev string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev = p.sessions[userID]
	p.sessions[userID] = sessionID
	return prev
}

// Disconnect clears the user's mapping only if sessionID is still the one
// stored, so a stale disconnect from an already-superseded session cannot
// mark the user offline. It reports whether the mapping was cleared.
func (p *Presence) Disconnect(userID int64, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.sessions[userID]; ok && current == sessionID {
		delete(p.sessions, userID)
		return true
	}
	return false
}

func (p *Presence) IsOnline(userID int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.sessions[userID]
	return ok
}

// SessionFor returns the user's current session ID, if the user is online.
func (p *Presence) SessionFor(userID int64) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.sessions[userID]
	return id, ok
}
