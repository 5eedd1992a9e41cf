package websocket

import (
	"sort"
	"time"
)

// Peer is one end of a relay connection. Send must not block.
type Peer interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type connection struct {
	peer        Peer
	connectedAt time.Time
	userID      string
	role        string
	rooms       map[string]struct{}
}

// Registry tracks open connections, their room memberships and the user
// identity each connection advertised. It is not safe for concurrent use;
// the Hub owns it and serializes every call.
type Registry struct {
	conns map[string]*connection
	rooms map[string]map[string]struct{}
	users map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connection),
		rooms: make(map[string]map[string]struct{}),
		users: make(map[string]map[string]struct{}),
	}
}

// Add records a newly connected peer and returns its connection id.
func (r *Registry) Add(p Peer, now time.Time) string {
	id := p.ID()
	if _, exists := r.conns[id]; exists {
		return id
	}
	r.conns[id] = &connection{
		peer:        p,
		connectedAt: now,
		rooms:       make(map[string]struct{}),
	}
	return id
}

// Remove forgets a connection and purges it from every room and from the
// user index. It returns the user id the connection was identified as and
// whether that user has no connections left. Unknown ids are a no-op.
func (r *Registry) Remove(id string) (userID string, lastForUser bool) {
	c, ok := r.conns[id]
	if !ok {
		return "", false
	}
	r.LeaveAll(id)
	userID = c.userID
	if userID != "" {
		lastForUser = r.unlinkUser(id, userID)
	}
	delete(r.conns, id)
	return userID, lastForUser
}

// Join adds the connection to room, creating the room on first use. Joining
// twice is the same as joining once. Unknown connections cannot join.
func (r *Registry) Join(id, room string) bool {
	c, ok := r.conns[id]
	if !ok || room == "" {
		return false
	}
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
	c.rooms[room] = struct{}{}
	return true
}

// Leave removes the connection from room and drops the room once empty.
func (r *Registry) Leave(id, room string) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	delete(c.rooms, room)
	if members, ok := r.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// LeaveAll removes the connection from every room it joined.
func (r *Registry) LeaveAll(id string) {
	c, ok := r.conns[id]
	if !ok {
		return
	}
	for room := range c.rooms {
		r.Leave(id, room)
	}
}

// Identify associates the connection with an external user id. A
// connection belongs to at most one user; identifying again moves it.
// firstForUser is true when the user had no other connection.
func (r *Registry) Identify(id, userID, role string) (firstForUser, ok bool) {
	c, exists := r.conns[id]
	if !exists || userID == "" {
		return false, false
	}
	if c.userID != "" && c.userID != userID {
		r.unlinkUser(id, c.userID)
	}
	c.userID = userID
	c.role = role

	conns := r.users[userID]
	if conns == nil {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	_, already := conns[id]
	conns[id] = struct{}{}
	return !already && len(conns) == 1, true
}

func (r *Registry) unlinkUser(id, userID string) (last bool) {
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	delete(conns, id)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// RoomsOf returns the rooms the connection joined, sorted.
func (r *Registry) RoomsOf(id string) []string {
	c, ok := r.conns[id]
	if !ok {
		return []string{}
	}
	return sortedKeys(c.rooms)
}

// MembersOf returns the connection ids in room, sorted. A room that was
// never joined has no members.
func (r *Registry) MembersOf(room string) []string {
	return sortedKeys(r.rooms[room])
}

// ConnectionsOf returns the connection ids identified as userID, sorted.
func (r *Registry) ConnectionsOf(userID string) []string {
	return sortedKeys(r.users[userID])
}

func (r *Registry) UserOf(id string) (userID, role string) {
	if c, ok := r.conns[id]; ok {
		return c.userID, c.role
	}
	return "", ""
}

func (r *Registry) Peer(id string) (Peer, bool) {
	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return c.peer, true
}

func (r *Registry) ConnectedAt(id string) (time.Time, bool) {
	c, ok := r.conns[id]
	if !ok {
		return time.Time{}, false
	}
	return c.connectedAt, true
}

// Peers returns every open connection.
func (r *Registry) Peers() []Peer {
	out := make([]Peer, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.peer)
	}
	return out
}

func (r *Registry) Count() int     { return len(r.conns) }
func (r *Registry) RoomCount() int { return len(r.rooms) }
func (r *Registry) UserCount() int { return len(r.users) }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
