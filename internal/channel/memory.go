package channel

import (
	"context"
	"sync"

	"github.com/quietline/quietline/internal/domain"
)

const watchBuffer = 64

type roomWatcher struct {
	ch   chan RoomEvent
	done bool
}

type messageWatcher struct {
	ch   chan []domain.Message
	done bool
}

type signalWatcher struct {
	ch   chan domain.SignalEnvelope
	me   domain.PeerRole
	done bool
}

// Memory is an in-process Channel with the same semantics as Redis.
// Used by tests and by single-node development setups.
type Memory struct {
	mu         sync.Mutex
	rooms      map[string]*domain.Room
	messages   map[string][]domain.Message
	slots      map[string]map[domain.SignalType]domain.SignalEnvelope
	candidates map[string]map[domain.PeerRole][]domain.SignalEnvelope

	roomWatchers    map[string][]*roomWatcher
	messageWatchers map[string][]*messageWatcher
	signalWatchers  map[string][]*signalWatcher
}

func NewMemory() *Memory {
	return &Memory{
		rooms:           make(map[string]*domain.Room),
		messages:        make(map[string][]domain.Message),
		slots:           make(map[string]map[domain.SignalType]domain.SignalEnvelope),
		candidates:      make(map[string]map[domain.PeerRole][]domain.SignalEnvelope),
		roomWatchers:    make(map[string][]*roomWatcher),
		messageWatchers: make(map[string][]*messageWatcher),
		signalWatchers:  make(map[string][]*signalWatcher),
	}
}

func (c *Memory) CreateRoom(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rooms[room.Code]; ok {
		return ErrRoomExists
	}
	clone := *room
	c.rooms[room.Code] = &clone
	return nil
}

func (c *Memory) Room(ctx context.Context, code string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	clone := *room
	return &clone, nil
}

func (c *Memory) JoinRoom(ctx context.Context, code string, guest *domain.Profile) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	room, ok := c.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Status != domain.RoomWaiting {
		return nil, ErrRoomClosed
	}

	room.Guest = guest
	room.Status = domain.RoomConnected
	c.notifyRoomLocked(code)

	clone := *room
	return &clone, nil
}

func (c *Memory) DeleteRoom(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.rooms, code)
	delete(c.messages, code)
	delete(c.slots, code)
	delete(c.candidates, code)
	c.notifyRoomLocked(code)
	return nil
}

func (c *Memory) WatchRoom(ctx context.Context, code string) (<-chan RoomEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	w := &roomWatcher{ch: make(chan RoomEvent, watchBuffer)}
	c.roomWatchers[code] = append(c.roomWatchers[code], w)

	if room, ok := c.rooms[code]; ok {
		clone := *room
		w.ch <- RoomEvent{Status: clone.Status, Room: &clone}
	} else {
		w.done = true
		w.ch <- RoomEvent{Status: domain.RoomEnded}
		close(w.ch)
	}
	c.mu.Unlock()

	go c.reapRoomWatcher(ctx, code, w)
	return w.ch, nil
}

func (c *Memory) AppendMessage(ctx context.Context, code string, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages[code] = append(c.messages[code], msg)
	snapshot := append([]domain.Message(nil), c.messages[code]...)
	for _, w := range c.messageWatchers[code] {
		if w.done {
			continue
		}
		select {
		case w.ch <- snapshot:
		default:
		}
	}
	return nil
}

func (c *Memory) Messages(ctx context.Context, code string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages[code]...), nil
}

func (c *Memory) WatchMessages(ctx context.Context, code string) (<-chan []domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	w := &messageWatcher{ch: make(chan []domain.Message, watchBuffer)}
	c.messageWatchers[code] = append(c.messageWatchers[code], w)
	if msgs := c.messages[code]; len(msgs) > 0 {
		w.ch <- append([]domain.Message(nil), msgs...)
	}
	c.mu.Unlock()

	go c.reapMessageWatcher(ctx, code, w)
	return w.ch, nil
}

func (c *Memory) PutSignal(ctx context.Context, code string, env domain.SignalEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if env.Type == domain.SignalCandidate {
		if c.candidates[code] == nil {
			c.candidates[code] = make(map[domain.PeerRole][]domain.SignalEnvelope)
		}
		c.candidates[code][env.Sender] = append(c.candidates[code][env.Sender], env)
	} else {
		if c.slots[code] == nil {
			c.slots[code] = make(map[domain.SignalType]domain.SignalEnvelope)
		}
		c.slots[code][env.Type] = env
	}

	for _, w := range c.signalWatchers[code] {
		if w.done || w.me == env.Sender {
			continue
		}
		select {
		case w.ch <- env:
		default:
		}
	}
	return nil
}

func (c *Memory) WatchSignals(ctx context.Context, code string, me domain.PeerRole) (<-chan domain.SignalEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	w := &signalWatcher{ch: make(chan domain.SignalEnvelope, watchBuffer), me: me}
	c.signalWatchers[code] = append(c.signalWatchers[code], w)

	peer := me.Opposite()
	for _, t := range []domain.SignalType{domain.SignalOffer, domain.SignalAnswer} {
		if env, ok := c.slots[code][t]; ok && env.Sender == peer {
			w.ch <- env
		}
	}
	for _, env := range c.candidates[code][peer] {
		w.ch <- env
	}
	c.mu.Unlock()

	go c.reapSignalWatcher(ctx, code, w)
	return w.ch, nil
}

func (c *Memory) Close() error {
	return nil
}

// notifyRoomLocked fans the current room record (or a terminal ended
// event when the record is gone) out to every watcher. Callers hold mu.
func (c *Memory) notifyRoomLocked(code string) {
	room, exists := c.rooms[code]
	for _, w := range c.roomWatchers[code] {
		if w.done {
			continue
		}
		if !exists {
			w.done = true
			w.ch <- RoomEvent{Status: domain.RoomEnded}
			close(w.ch)
			continue
		}
		clone := *room
		select {
		case w.ch <- RoomEvent{Status: clone.Status, Room: &clone}:
		default:
		}
	}
}

func (c *Memory) reapRoomWatcher(ctx context.Context, code string, w *roomWatcher) {
	<-ctx.Done()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !w.done {
		w.done = true
		close(w.ch)
	}
	c.roomWatchers[code] = removeWatcher(c.roomWatchers[code], w)
}

func (c *Memory) reapMessageWatcher(ctx context.Context, code string, w *messageWatcher) {
	<-ctx.Done()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !w.done {
		w.done = true
		close(w.ch)
	}
	c.messageWatchers[code] = removeWatcher(c.messageWatchers[code], w)
}

func (c *Memory) reapSignalWatcher(ctx context.Context, code string, w *signalWatcher) {
	<-ctx.Done()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !w.done {
		w.done = true
		close(w.ch)
	}
	c.signalWatchers[code] = removeWatcher(c.signalWatchers[code], w)
}

func removeWatcher[T comparable](list []T, target T) []T {
	out := list[:0]
	for _, w := range list {
		if w != target {
			out = append(out, w)
		}
	}
	return out
}
