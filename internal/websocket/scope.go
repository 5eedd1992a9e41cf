package websocket

import "fmt"

type scopeKind int

const (
	scopeRoomExcept scopeKind = iota + 1
	scopeAll
	scopeUser
)

// Scope decides which connections receive an emitted event.
type Scope struct {
	kind   scopeKind
	room   string
	except string
	userID string
}

// ToRoomExcept targets every member of room other than sender.
func ToRoomExcept(room, sender string) Scope {
	return Scope{kind: scopeRoomExcept, room: room, except: sender}
}

// ToAll targets every open connection, including the sender.
func ToAll() Scope {
	return Scope{kind: scopeAll}
}

// ToUser targets the connections identified as userID.
func ToUser(userID string) Scope {
	return Scope{kind: scopeUser, userID: userID}
}

func (s Scope) String() string {
	switch s.kind {
	case scopeRoomExcept:
		return fmt.Sprintf("room(%s)-except(%s)", s.room, s.except)
	case scopeAll:
		return "all"
	case scopeUser:
		return fmt.Sprintf("user(%s)", s.userID)
	default:
		return "none"
	}
}

// recipients resolves the scope against the registry at delivery time.
func (s Scope) recipients(r *Registry) []Peer {
	var ids []string
	switch s.kind {
	case scopeAll:
		return r.Peers()
	case scopeRoomExcept:
		ids = r.MembersOf(s.room)
	case scopeUser:
		ids = r.ConnectionsOf(s.userID)
	}

	peers := make([]Peer, 0, len(ids))
	for _, id := range ids {
		if s.kind == scopeRoomExcept && id == s.except {
			continue
		}
		if p, ok := r.Peer(id); ok {
			peers = append(peers, p)
		}
	}
	return peers
}
