package domain

import "time"

type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomConnected RoomStatus = "connected"
	RoomEnded     RoomStatus = "ended"
)

// PeerRole is the identity key for the two parties of a room. Peer
// identity is always resolved through the role tag, never by comparing
// display names.
type PeerRole string

const (
	RoleHost  PeerRole = "host"
	RoleGuest PeerRole = "guest"
)

// Room is a two-party signaling record identified by a short numeric
// code. A room accepts exactly one guest, and only while waiting.
type Room struct {
	Code      string     `json:"code"`
	Host      *Profile   `json:"host"`
	Guest     *Profile   `json:"guest,omitempty"`
	Status    RoomStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewRoom(code string, host *Profile) *Room {
	return &Room{
		Code:      code,
		Host:      host,
		Status:    RoomWaiting,
		CreatedAt: time.Now().UTC(),
	}
}

// PeerOf returns the profile of the party opposite to role, or nil if
// that side has not joined yet.
func (r *Room) PeerOf(role PeerRole) *Profile {
	if r == nil {
		return nil
	}
	if role == RoleHost {
		return r.Guest
	}
	return r.Host
}

// Opposite returns the counterpart role.
func (r PeerRole) Opposite() PeerRole {
	if r == RoleHost {
		return RoleGuest
	}
	return RoleHost
}

func (r PeerRole) Valid() bool {
	return r == RoleHost || r == RoleGuest
}
