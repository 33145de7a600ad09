// Package channel provides the realtime signaling channel: a shared
// key-value tree used as a mailbox for room records, chat messages and
// WebRTC signaling payloads. The production implementation is backed by
// Redis; an in-memory implementation with identical semantics backs the
// tests.
package channel

import (
	"context"
	"errors"

	"github.com/quietline/quietline/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room code already in use")
	ErrRoomClosed   = errors.New("room is full or ended")
)

// RoomEvent is one observation of a room record. Room is nil exactly
// once, when the record disappears; watchers interpret that as ended.
type RoomEvent struct {
	Status domain.RoomStatus
	Room   *domain.Room
}

// Channel is the shared connection handle to the realtime service.
// One Channel is constructed at process start and passed into every
// component that needs it.
type Channel interface {
	// CreateRoom writes a fresh room record. Returns ErrRoomExists if
	// the code is already taken.
	CreateRoom(ctx context.Context, room *domain.Room) error

	// Room reads the current room record.
	Room(ctx context.Context, code string) (*domain.Room, error)

	// JoinRoom adds guest to the room and flips its status to connected.
	// The update is conditional: it succeeds only if the record still
	// reads waiting at commit time, otherwise ErrRoomClosed is returned.
	JoinRoom(ctx context.Context, code string, guest *domain.Profile) (*domain.Room, error)

	// DeleteRoom removes the room record and everything beneath it.
	// Deleting an absent room is not an error.
	DeleteRoom(ctx context.Context, code string) error

	// WatchRoom streams room record changes. The first event reflects
	// the current record. When the record is removed the stream delivers
	// a single RoomEvent with Status ended and a nil Room, then closes.
	WatchRoom(ctx context.Context, code string) (<-chan RoomEvent, error)

	// AppendMessage appends msg to the room's chat log.
	AppendMessage(ctx context.Context, code string, msg domain.Message) error

	// Messages reads the full chat log in arrival order. Consumers must
	// re-sort by timestamp; the channel guarantees nothing about order.
	Messages(ctx context.Context, code string) ([]domain.Message, error)

	// WatchMessages delivers the entire current log on every change.
	WatchMessages(ctx context.Context, code string) (<-chan []domain.Message, error)

	// PutSignal stores one signal envelope. Offers and answers occupy a
	// single last-write-wins slot per type; candidates are appended to
	// the sender's list.
	PutSignal(ctx context.Context, code string, env domain.SignalEnvelope) error

	// WatchSignals streams the counterpart's signals for a session with
	// role me: any already-present offer/answer and candidates first, in
	// original order, then live writes as they land.
	WatchSignals(ctx context.Context, code string, me domain.PeerRole) (<-chan domain.SignalEnvelope, error)

	Close() error
}
