package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/lib/logger/sl"
)

const defaultKeyPrefix = "ql:"

// Room keys expire after this much time so that abandoned waiting rooms
// do not accumulate server-side. There is no in-band timeout: a waiting
// room stays joinable until it is left or the keys lapse.
const roomTTL = 24 * time.Hour

// joinScript commits the prebuilt connected record while the stored one
// still reads waiting, so two simultaneous joiners cannot both win. The
// record bytes are marshaled in Go and written verbatim: cjson cannot
// round-trip an empty JSON array (it re-encodes [] as {}), so the
// script never re-encodes the record. Returns 0 when the record is
// absent, 1 when the room is no longer waiting, 2 on success.
var joinScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local room = cjson.decode(raw)
if room.status ~= 'waiting' then
  return 1
end
redis.call('SET', KEYS[1], ARGV[1], 'KEEPTTL')
return 2
`)

// event is the pub/sub notification fanned out to watchers of a room.
type event struct {
	Kind     string                 `json:"kind"` // "room", "message" or "signal"
	Envelope *domain.SignalEnvelope `json:"envelope,omitempty"`
}

// Redis implements Channel on top of a Redis key-value tree:
//
//	{prefix}rooms:{code}                     room record (JSON)
//	{prefix}rooms:{code}:messages            chat log (list of JSON)
//	{prefix}rooms:{code}:signal:{type}       offer/answer slots (JSON)
//	{prefix}rooms:{code}:candidates:{role}   candidate lists (list of JSON)
//	{prefix}rooms:{code}:events              pub/sub change notifications
type Redis struct {
	rdb       *redis.Client
	keyPrefix string
	log       *slog.Logger
}

func NewRedis(rdb *redis.Client, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{rdb: rdb, keyPrefix: defaultKeyPrefix, log: log}
}

func (c *Redis) roomKey(code string) string {
	return c.keyPrefix + "rooms:" + code
}

func (c *Redis) messagesKey(code string) string {
	return c.roomKey(code) + ":messages"
}

func (c *Redis) signalKey(code string, t domain.SignalType) string {
	return c.roomKey(code) + ":signal:" + string(t)
}

func (c *Redis) candidatesKey(code string, role domain.PeerRole) string {
	return c.roomKey(code) + ":candidates:" + string(role)
}

func (c *Redis) eventsTopic(code string) string {
	return c.roomKey(code) + ":events"
}

func (c *Redis) CreateRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	ok, err := c.rdb.SetNX(ctx, c.roomKey(room.Code), data, roomTTL).Result()
	if err != nil {
		return fmt.Errorf("store room %s: %w", room.Code, err)
	}
	if !ok {
		return ErrRoomExists
	}
	return nil
}

func (c *Redis) Room(ctx context.Context, code string) (*domain.Room, error) {
	raw, err := c.rdb.Get(ctx, c.roomKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read room %s: %w", code, err)
	}
	var room domain.Room
	if err := json.Unmarshal([]byte(raw), &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &room, nil
}

func (c *Redis) JoinRoom(ctx context.Context, code string, guest *domain.Profile) (*domain.Room, error) {
	room, err := c.Room(ctx, code)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomWaiting {
		return nil, ErrRoomClosed
	}

	room.Guest = guest
	room.Status = domain.RoomConnected
	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("marshal room: %w", err)
	}

	// The script re-checks the waiting status atomically, so a stale
	// read here only loses the race, never overwrites a winner.
	res, err := joinScript.Run(ctx, c.rdb, []string{c.roomKey(code)}, data).Result()
	if err != nil {
		return nil, fmt.Errorf("join room %s: %w", code, err)
	}

	switch res {
	case int64(0):
		return nil, ErrRoomNotFound
	case int64(1):
		return nil, ErrRoomClosed
	case int64(2):
		c.publish(ctx, code, event{Kind: "room"})
		return room, nil
	default:
		return nil, fmt.Errorf("join room %s: unexpected reply %v", code, res)
	}
}

func (c *Redis) DeleteRoom(ctx context.Context, code string) error {
	keys := []string{
		c.roomKey(code),
		c.messagesKey(code),
		c.signalKey(code, domain.SignalOffer),
		c.signalKey(code, domain.SignalAnswer),
		c.candidatesKey(code, domain.RoleHost),
		c.candidatesKey(code, domain.RoleGuest),
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete room %s: %w", code, err)
	}
	c.publish(ctx, code, event{Kind: "room"})
	return nil
}

func (c *Redis) WatchRoom(ctx context.Context, code string) (<-chan RoomEvent, error) {
	sub := c.rdb.Subscribe(ctx, c.eventsTopic(code))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe room %s: %w", code, err)
	}

	out := make(chan RoomEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		emit := func() bool {
			room, err := c.Room(ctx, code)
			if errors.Is(err, ErrRoomNotFound) {
				out <- RoomEvent{Status: domain.RoomEnded}
				return false
			}
			if err != nil {
				c.log.Warn("room watch read failed", slog.String("code", code), sl.Err(err))
				return true
			}
			select {
			case out <- RoomEvent{Status: room.Status, Room: room}:
			case <-ctx.Done():
				return false
			}
			return true
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Kind != "room" {
					continue
				}
				if !emit() {
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *Redis) AppendMessage(ctx context.Context, code string, msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := c.messagesKey(code)
	if err := c.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("append message to %s: %w", code, err)
	}
	c.rdb.Expire(ctx, key, roomTTL)
	c.publish(ctx, code, event{Kind: "message"})
	return nil
}

func (c *Redis) Messages(ctx context.Context, code string) ([]domain.Message, error) {
	raw, err := c.rdb.LRange(ctx, c.messagesKey(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages of %s: %w", code, err)
	}
	msgs := make([]domain.Message, 0, len(raw))
	for _, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			c.log.Warn("dropping undecodable message", slog.String("code", code), sl.Err(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (c *Redis) WatchMessages(ctx context.Context, code string) (<-chan []domain.Message, error) {
	sub := c.rdb.Subscribe(ctx, c.eventsTopic(code))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe messages %s: %w", code, err)
	}

	out := make(chan []domain.Message, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		emit := func() {
			msgs, err := c.Messages(ctx, code)
			if err != nil {
				c.log.Warn("message watch read failed", slog.String("code", code), sl.Err(err))
				return
			}
			if len(msgs) == 0 {
				return
			}
			select {
			case out <- msgs:
			case <-ctx.Done():
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Kind != "message" {
					continue
				}
				emit()
			}
		}
	}()
	return out, nil
}

func (c *Redis) PutSignal(ctx context.Context, code string, env domain.SignalEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}

	if env.Type == domain.SignalCandidate {
		key := c.candidatesKey(code, env.Sender)
		if err := c.rdb.RPush(ctx, key, data).Err(); err != nil {
			return fmt.Errorf("append candidate to %s: %w", code, err)
		}
		c.rdb.Expire(ctx, key, roomTTL)
	} else {
		if err := c.rdb.Set(ctx, c.signalKey(code, env.Type), data, roomTTL).Err(); err != nil {
			return fmt.Errorf("store %s signal of %s: %w", env.Type, code, err)
		}
	}
	c.publish(ctx, code, event{Kind: "signal", Envelope: &env})
	return nil
}

func (c *Redis) WatchSignals(ctx context.Context, code string, me domain.PeerRole) (<-chan domain.SignalEnvelope, error) {
	sub := c.rdb.Subscribe(ctx, c.eventsTopic(code))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe signals %s: %w", code, err)
	}

	out := make(chan domain.SignalEnvelope, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		// Replay whatever the counterpart wrote before we subscribed:
		// the description slots first, then their candidates in append
		// order. Late subscribers would otherwise miss the offer. An
		// envelope written between subscribe and this read shows up
		// both here and on pub/sub, so each replayed envelope absorbs
		// one matching live delivery.
		replayed := make(map[string]int)
		for _, env := range c.storedSignals(ctx, code, me.Opposite()) {
			replayed[signalDedupKey(env)]++
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				if ev.Kind != "signal" || ev.Envelope == nil || ev.Envelope.Sender == me {
					continue
				}
				if key := signalDedupKey(*ev.Envelope); replayed[key] > 0 {
					replayed[key]--
					continue
				}
				select {
				case out <- *ev.Envelope:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func signalDedupKey(env domain.SignalEnvelope) string {
	return string(env.Type) + "|" + string(env.Sender) + "|" + env.Payload
}

// storedSignals reads the already-written envelopes of the given sender.
func (c *Redis) storedSignals(ctx context.Context, code string, sender domain.PeerRole) []domain.SignalEnvelope {
	var envs []domain.SignalEnvelope

	for _, t := range []domain.SignalType{domain.SignalOffer, domain.SignalAnswer} {
		raw, err := c.rdb.Get(ctx, c.signalKey(code, t)).Result()
		if err != nil {
			continue
		}
		var env domain.SignalEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err == nil && env.Sender == sender {
			envs = append(envs, env)
		}
	}

	items, err := c.rdb.LRange(ctx, c.candidatesKey(code, sender), 0, -1).Result()
	if err != nil {
		return envs
	}
	for _, item := range items {
		var env domain.SignalEnvelope
		if err := json.Unmarshal([]byte(item), &env); err == nil {
			envs = append(envs, env)
		}
	}
	return envs
}

func (c *Redis) publish(ctx context.Context, code string, ev event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := c.rdb.Publish(ctx, c.eventsTopic(code), data).Err(); err != nil {
		c.log.Warn("publish failed", slog.String("code", code), sl.Err(err))
	}
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}
