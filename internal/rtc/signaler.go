package rtc

import (
	"context"

	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/domain"
)

// ChannelSignaler publishes a session's outbound envelopes to the room's
// mailbox on the realtime channel.
type ChannelSignaler struct {
	ch   channel.Channel
	code string
}

func NewChannelSignaler(ch channel.Channel, code string) *ChannelSignaler {
	return &ChannelSignaler{ch: ch, code: code}
}

func (s *ChannelSignaler) Send(ctx context.Context, env domain.SignalEnvelope) error {
	return s.ch.PutSignal(ctx, s.code, env)
}
