package sessions

import (
	"errors"
	"sort"
	"sync"

	"github.com/gogotex/gogotex/backend/collab-service/internal/broadcast"
	"github.com/gogotex/gogotex/backend/collab-service/internal/models"
	"github.com/gogotex/gogotex/backend/collab-service/pkg/metrics"
	"github.com/google/uuid"
)

var ErrDuplicateSession = errors.New("session id already registered")

// Session is one authenticated connection. The identity is fixed for the
// session's lifetime. The outbound queue is never closed; Done is closed
// exactly once when the session is dropped.
type Session struct {
	id   string
	user models.Identity

	send      chan broadcast.Message
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func (s *Session) ID() string            { return s.id }
func (s *Session) User() models.Identity { return s.user }

// Outbound is the queue the connection writer drains.
func (s *Session) Outbound() <-chan broadcast.Message { return s.send }

// Done is closed when the session is dropped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Deliver queues msg without blocking.
func (s *Session) Deliver(msg broadcast.Message) error {
	select {
	case <-s.done:
		return broadcast.ErrPeerClosed
	default:
	}
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return broadcast.ErrPeerClosed
	default:
		return broadcast.ErrPeerBusy
	}
}

// Rooms lists the rooms the session has joined, sorted.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rooms))
	for r := range s.rooms {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// InRoom reports whether the session is a member of documentID.
func (s *Session) InRoom(documentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[documentID]
	return ok
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

type room struct {
	mu      sync.RWMutex
	members map[string]*Session
	dead    bool // removed from the registry; joiners must look up again
}

// Registry tracks live sessions and room membership. Rooms exist only while
// they have members: created on first join, removed when the last member
// leaves. Each room has its own lock; the registry lock only guards the maps
// and is never held while a room lock is held.
type Registry struct {
	sendBuffer int

	sessMu   sync.Mutex
	sessions map[string]*Session

	roomsMu sync.RWMutex
	rooms   map[string]*room
}

func NewRegistry(sendBuffer int) *Registry {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Registry{
		sendBuffer: sendBuffer,
		sessions:   make(map[string]*Session),
		rooms:      make(map[string]*room),
	}
}

// Register creates a session for an authenticated connection. An empty
// connectionID is replaced by a fresh uuid.
func (r *Registry) Register(connectionID string, user models.Identity) (*Session, error) {
	if connectionID == "" {
		connectionID = uuid.NewString()
	}
	s := &Session{
		id:    connectionID,
		user:  user,
		send:  make(chan broadcast.Message, r.sendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	if _, ok := r.sessions[connectionID]; ok {
		return nil, ErrDuplicateSession
	}
	r.sessions[connectionID] = s
	metrics.ActiveConnections.Set(float64(len(r.sessions)))
	return s, nil
}

// Lookup returns the live session for connectionID.
func (r *Registry) Lookup(connectionID string) (*Session, bool) {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	s, ok := r.sessions[connectionID]
	return s, ok
}

// Join adds s to the room for documentID. Joining twice is a no-op; the
// return value reports whether membership changed.
func (r *Registry) Join(s *Session, documentID string) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	for {
		rm := r.roomFor(documentID)
		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			r.forgetRoom(documentID, rm)
			continue
		}
		_, already := rm.members[s.id]
		rm.members[s.id] = s
		rm.mu.Unlock()

		s.mu.Lock()
		s.rooms[documentID] = struct{}{}
		s.mu.Unlock()

		// lost a race with DropSession: undo so the room can be collected
		select {
		case <-s.done:
			r.Leave(s, documentID)
			return false
		default:
		}
		return !already
	}
}

// Leave removes s from documentID's room; a no-op when not a member.
func (r *Registry) Leave(s *Session, documentID string) bool {
	s.mu.Lock()
	delete(s.rooms, documentID)
	s.mu.Unlock()
	return r.removeMember(documentID, s.id)
}

// DropSession removes the session from every room and releases it. Only the
// first call for a connection does anything; it never blocks on deliveries.
func (r *Registry) DropSession(connectionID string) (*Session, bool) {
	r.sessMu.Lock()
	s, ok := r.sessions[connectionID]
	if ok {
		delete(r.sessions, connectionID)
	}
	metrics.ActiveConnections.Set(float64(len(r.sessions)))
	r.sessMu.Unlock()
	if !ok {
		return nil, false
	}
	s.close()
	for _, doc := range s.Rooms() {
		r.Leave(s, doc)
	}
	return s, true
}

// Members snapshots the sessions currently in documentID's room.
func (r *Registry) Members(documentID string) []*Session {
	r.roomsMu.RLock()
	rm, ok := r.rooms[documentID]
	r.roomsMu.RUnlock()
	if !ok {
		return nil
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]*Session, 0, len(rm.members))
	for _, s := range rm.members {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Peers implements broadcast.Membership.
func (r *Registry) Peers(roomID, excludeID string) []broadcast.Peer {
	members := r.Members(roomID)
	out := make([]broadcast.Peer, 0, len(members))
	for _, s := range members {
		if s.id != excludeID {
			out = append(out, s)
		}
	}
	return out
}

// Prune implements broadcast.Membership.
func (r *Registry) Prune(roomID, peerID string) {
	r.removeMember(roomID, peerID)
}

// RoomCount is the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.roomsMu.RLock()
	defer r.roomsMu.RUnlock()
	return len(r.rooms)
}

// SessionCount is the number of live sessions.
func (r *Registry) SessionCount() int {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	return len(r.sessions)
}

func (r *Registry) roomFor(documentID string) *room {
	r.roomsMu.RLock()
	rm, ok := r.rooms[documentID]
	r.roomsMu.RUnlock()
	if ok {
		return rm
	}
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	if rm, ok = r.rooms[documentID]; ok {
		return rm
	}
	rm = &room{members: make(map[string]*Session)}
	r.rooms[documentID] = rm
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return rm
}

func (r *Registry) removeMember(documentID, sessionID string) bool {
	r.roomsMu.RLock()
	rm, ok := r.rooms[documentID]
	r.roomsMu.RUnlock()
	if !ok {
		return false
	}
	rm.mu.Lock()
	_, member := rm.members[sessionID]
	delete(rm.members, sessionID)
	empty := len(rm.members) == 0 && !rm.dead
	if empty {
		rm.dead = true
	}
	rm.mu.Unlock()

	if empty {
		r.forgetRoom(documentID, rm)
	}
	return member
}

// forgetRoom drops rm from the map unless it was already replaced.
func (r *Registry) forgetRoom(documentID string, rm *room) {
	r.roomsMu.Lock()
	defer r.roomsMu.Unlock()
	if r.rooms[documentID] == rm {
		delete(r.rooms, documentID)
	}
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
}
