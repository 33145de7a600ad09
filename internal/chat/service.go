// Package chat exposes the append-only per-room text log. The channel
// delivers the whole message set on every change with no ordering
// guarantee, so everything handed to consumers is re-sorted by
// timestamp first.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/lib/logger/sl"
)

const maxMessageLength = 4000

var ErrEmptyMessage = errors.New("message text is empty")
var ErrMessageTooLong = errors.New("message text is too long")

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

// Send appends one message to the room log. Messages are immutable once
// appended; there is no delivery acknowledgment.
func (s *Service) Send(ctx context.Context, code string, sender domain.MessageSender, text string) (domain.Message, error) {
	const op = "chat.send"

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if len(trimmed) > maxMessageLength {
		return domain.Message{}, ErrMessageTooLong
	}

	msg := domain.NewMessage(sender, trimmed)
	if err := s.ch.AppendMessage(ctx, code, msg); err != nil {
		s.log.Error("message append failed", slog.String("op", op), slog.String("code", code), sl.Err(err))
		return domain.Message{}, err
	}
	return msg, nil
}

// History returns the current log sorted by timestamp.
func (s *Service) History(ctx context.Context, code string) ([]domain.Message, error) {
	msgs, err := s.ch.Messages(ctx, code)
	if err != nil {
		return nil, err
	}
	sortByTimestamp(msgs)
	return msgs, nil
}

// Watch delivers the entire log, re-sorted, on every change.
func (s *Service) Watch(ctx context.Context, code string) (<-chan []domain.Message, error) {
	raw, err := s.ch.WatchMessages(ctx, code)
	if err != nil {
		return nil, err
	}

	out := make(chan []domain.Message, 16)
	go func() {
		defer close(out)
		for msgs := range raw {
			sortByTimestamp(msgs)
			select {
			case out <- msgs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func sortByTimestamp(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}
