// Package room implements the two-party room lifecycle: creation with a
// shareable 6-digit code, the single conditional join, unconditional
// leave, and the status subscription both sides drive their session
// state machines from.
package room

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/lib/logger/sl"
)

var ErrInvalidCode = errors.New("room code must be 6 digits")

const codeLength = 6

// StatusUpdate is one observation delivered to a Watch subscriber. Peer
// is the counterpart's profile, resolved by role tag, or nil while the
// room is still waiting.
type StatusUpdate struct {
	Status domain.RoomStatus
	Peer   *domain.Profile
}

type Service struct {
	ch  channel.Channel
	log *slog.Logger
}

func NewService(ch channel.Channel, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ch: ch, log: log}
}

// Create writes a fresh waiting room and returns it. Code collisions
// are retried with a new code.
func (s *Service) Create(ctx context.Context, host *domain.Profile) (*domain.Room, error) {
	const op = "room.create"
	if host == nil {
		return nil, errors.New("host profile is required")
	}

	for {
		room := domain.NewRoom(GenerateCode(), host)
		if err := s.ch.CreateRoom(ctx, room); err != nil {
			if errors.Is(err, channel.ErrRoomExists) {
				continue
			}
			s.log.Error("room create failed", slog.String("op", op), sl.Err(err))
			return nil, err
		}
		s.log.Info("room created",
			slog.String("op", op),
			slog.String("code", room.Code),
			slog.String("host", host.ID.String()),
		)
		return room, nil
	}
}

func (s *Service) Get(ctx context.Context, code string) (*domain.Room, error) {
	if !validCode(code) {
		return nil, ErrInvalidCode
	}
	return s.ch.Room(ctx, code)
}

// Join adds guest to the waiting room identified by code. The channel
// commits the guest only if the room still reads waiting, so a second
// joiner always gets channel.ErrRoomClosed.
func (s *Service) Join(ctx context.Context, code string, guest *domain.Profile) (*domain.Room, error) {
	const op = "room.join"
	if !validCode(code) {
		return nil, ErrInvalidCode
	}
	if guest == nil {
		return nil, errors.New("guest profile is required")
	}

	room, err := s.ch.JoinRoom(ctx, code, guest)
	if err != nil {
		s.log.Info("room join rejected", slog.String("op", op), slog.String("code", code), sl.Err(err))
		return nil, err
	}

	s.log.Info("room joined",
		slog.String("op", op),
		slog.String("code", code),
		slog.String("guest", guest.ID.String()),
	)
	return room, nil
}

// Leave removes the room record unconditionally. Either party may call
// it; the other side observes the disappearance as ended. Best effort,
// no acknowledgment is awaited.
func (s *Service) Leave(ctx context.Context, code string) error {
	const op = "room.leave"
	if !validCode(code) {
		return ErrInvalidCode
	}
	if err := s.ch.DeleteRoom(ctx, code); err != nil {
		s.log.Error("room leave failed", slog.String("op", op), slog.String("code", code), sl.Err(err))
		return err
	}
	s.log.Info("room left", slog.String("op", op), slog.String("code", code))
	return nil
}

// Watch streams (status, peer profile) updates for the session with
// role me. The stream ends after the single ended observation.
func (s *Service) Watch(ctx context.Context, code string, me domain.PeerRole) (<-chan StatusUpdate, error) {
	if !validCode(code) {
		return nil, ErrInvalidCode
	}

	events, err := s.ch.WatchRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	out := make(chan StatusUpdate, 16)
	go func() {
		defer close(out)
		for ev := range events {
			update := StatusUpdate{Status: ev.Status, Peer: ev.Room.PeerOf(me)}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
			if ev.Status == domain.RoomEnded {
				return
			}
		}
	}()
	return out, nil
}

// GenerateCode returns a uniformly random 6-digit code in
// [100000, 999999].
func GenerateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic(err)
	}
	return strconv.FormatInt(100000+n.Int64(), 10)
}

func validCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
