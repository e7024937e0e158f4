package ws

import "sync"

// Hub is the live delivery router. It tracks sessions and the rooms they
// joined (one room per conversation) and fans events out to them. Room
// membership is the fast path; the presence registry is the correctness
// backstop for participants who are connected but not yet joined.
//
// Delivery is best-effort: a failed write closes the connection and the
// event is dropped. Durability comes from the message store; clients that
// miss a live event recover by re-fetching history.
type Hub struct {
	mu           sync.RWMutex
	presence     *Presence
	sessions     map[string]*Session
	rooms        map[int64]map[string]*Session
	sessionRooms map[string]map[int64]struct{}
}

func NewHub(presence *Presence) *Hub {
	return &Hub{
		presence:     presence,
		sessions:     make(map[string]*Session),
		rooms:        make(map[int64]map[string]*Session),
		sessionRooms: make(map[string]map[int64]struct{}),
	}
}

func (h *Hub) Presence() *Presence {
	return h.presence
}

// Register tracks the session and records it in the presence registry.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.sessionRooms[s.ID] = make(map[int64]struct{})
	h.mu.Unlock()

	h.presence.Connect(s.UserID, s.ID)
}

// Unregister removes the session from all rooms and reports whether the
// presence registry was cleared for its user (false when a newer session
// has already superseded this one).
func (h *Hub) Unregister(s *Session) bool {
	h.mu.Lock()
	for convID := range h.sessionRooms[s.ID] {
		h.leaveLocked(convID, s.ID)
	}
	delete(h.sessionRooms, s.ID)
	delete(h.sessions, s.ID)
	h.mu.Unlock()

	return h.presence.Disconnect(s.UserID, s.ID)
}

// Join adds the session to the conversation's room. Joining twice is a no-op.
func (h *Hub) Join(conversationID int64, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, tracked := h.sessions[s.ID]; !tracked {
		return
	}
	room := h.rooms[conversationID]
	if room == nil {
		room = make(map[string]*Session)
		h.rooms[conversationID] = room
	}
	room[s.ID] = s
	h.sessionRooms[s.ID][conversationID] = struct{}{}
}

// InRoom reports whether the session has joined the conversation's room.
func (h *Hub) InRoom(conversationID int64, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][sessionID]
	return ok
}

// BroadcastToRoom delivers the payload to every session in the
// conversation's room, skipping excludeSessionID when non-empty.
func (h *Hub) BroadcastToRoom(conversationID int64, payload any, excludeSessionID string) {
	for _, s := range h.roomSnapshot(conversationID) {
		if s.ID == excludeSessionID {
			continue
		}
		h.deliver(s, payload)
	}
}

// BroadcastToConversation delivers the payload to every room member, then
// directly to any participant whose registry session is online but not in
// the room. This covers the window between connecting and finishing room
// joins, and multi-session reconnect races. Each session receives the
// payload at most once.
func (h *Hub) BroadcastToConversation(conversationID int64, participantIDs []int64, payload any) {
	delivered := make(map[string]struct{})
	for _, s := range h.roomSnapshot(conversationID) {
		delivered[s.ID] = struct{}{}
		h.deliver(s, payload)
	}
	for _, uid := range participantIDs {
		sid, ok := h.presence.SessionFor(uid)
		if !ok {
			continue
		}
		if _, done := delivered[sid]; done {
			continue
		}
		h.mu.RLock()
		s := h.sessions[sid]
		h.mu.RUnlock()
		if s == nil {
			continue
		}
		delivered[sid] = struct{}{}
		h.deliver(s, payload)
	}
}

// NotifyUser delivers the payload to the user's current registry session.
// Reports false if the user is offline or the write failed.
func (h *Hub) NotifyUser(userID int64, payload any) bool {
	sid, ok := h.presence.SessionFor(userID)
	if !ok {
		return false
	}
	h.mu.RLock()
	s := h.sessions[sid]
	h.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.Send(payload) == nil
}

func (h *Hub) roomSnapshot(conversationID int64) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[conversationID]
	if len(room) == 0 {
		return nil
	}
	res := make([]*Session, 0, len(room))
	for _, s := range room {
		res = append(res, s)
	}
	return res
}

func (h *Hub) deliver(s *Session, payload any) {
	if err := s.Send(payload); err != nil {
		// Best-effort: the dead session is fully removed on its handler's
		// disconnect path.
		s.Close()
	}
}

func (h *Hub) leaveLocked(conversationID int64, sessionID string) {
	room := h.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(h.rooms, conversationID)
	}
}
