package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/domain"
)

// Drives a full offer/answer exchange between two sessions through the
// in-memory channel mailbox.
func TestChannelSignaler_HostGuestNegotiation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := channel.NewMemory()
	code := "123456"

	hostConn := &fakeConn{}
	guestConn := &fakeConn{}

	host := NewSession(domain.RoleHost, NewChannelSignaler(mem, code), DeniedSource{}, nil, nil)
	host.newConn = func() (PeerConnection, error) { return hostConn, nil }
	guest := NewSession(domain.RoleGuest, NewChannelSignaler(mem, code), DeniedSource{}, nil, nil)
	guest.newConn = func() (PeerConnection, error) { return guestConn, nil }

	hostSignals, err := mem.WatchSignals(ctx, code, domain.RoleHost)
	require.NoError(t, err)
	guestSignals, err := mem.WatchSignals(ctx, code, domain.RoleGuest)
	require.NoError(t, err)

	// Both sides observe the room flip to connected. The host's offer
	// lands in the mailbox.
	require.NoError(t, guest.HandleStatus(ctx, domain.RoomConnected))
	require.NoError(t, host.HandleStatus(ctx, domain.RoomConnected))

	env := recvSignal(t, guestSignals)
	require.Equal(t, domain.SignalOffer, env.Type)
	require.NoError(t, guest.HandleSignal(ctx, env))

	// The guest's answer travels back and completes the handshake.
	env = recvSignal(t, hostSignals)
	require.Equal(t, domain.SignalAnswer, env.Type)
	require.NoError(t, host.HandleSignal(ctx, env))

	assert.Contains(t, hostConn.ops, "set-remote")
	assert.Contains(t, guestConn.ops, "set-remote")
	assert.Equal(t, StateNegotiating, host.State())
	assert.Equal(t, StateNegotiating, guest.State())
}

func recvSignal(t *testing.T, ch <-chan domain.SignalEnvelope) domain.SignalEnvelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		require.True(t, ok, "signal stream closed early")
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for signal")
		return domain.SignalEnvelope{}
	}
}
