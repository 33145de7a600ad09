package room_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietline/quietline/internal/channel"
	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/room"
)

func speaker(name string) *domain.Profile {
	return domain.NewProfile(name, "25-34", domain.RoleSpeaker, "anxious", "", []string{"work"})
}

func listener(name string) *domain.Profile {
	return domain.NewProfile(name, "35-44", domain.RoleListener, "calm", "", nil)
}

func TestGenerateCode_SixDigits(t *testing.T) {
	t.Parallel()

	for i := 0; i < 1000; i++ {
		code := room.GenerateCode()
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}

func TestService_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := room.NewService(channel.NewMemory(), nil)
	host := speaker("host")

	created, err := svc.Create(ctx, host)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomWaiting, created.Status)
	assert.Equal(t, host.ID, created.Host.ID)
	assert.Nil(t, created.Guest)

	got, err := svc.Get(ctx, created.Code)
	require.NoError(t, err)
	assert.Equal(t, created.Code, got.Code)
}

func TestService_Create_NilHost(t *testing.T) {
	t.Parallel()

	svc := room.NewService(channel.NewMemory(), nil)
	_, err := svc.Create(context.Background(), nil)
	assert.Error(t, err)
}

func TestService_Get_InvalidCode(t *testing.T) {
	t.Parallel()

	svc := room.NewService(channel.NewMemory(), nil)

	for _, code := range []string{"", "12345", "1234567", "12a456", "abcdef"} {
		_, err := svc.Get(context.Background(), code)
		assert.ErrorIs(t, err, room.ErrInvalidCode, "code %q", code)
	}
}

func TestService_Join_SecondJoinerRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc := room.NewService(channel.NewMemory(), nil)

	created, err := svc.Create(ctx, speaker("host"))
	require.NoError(t, err)

	joined, err := svc.Join(ctx, created.Code, listener("first"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoomConnected, joined.Status)

	_, err = svc.Join(ctx, created.Code, listener("second"))
	assert.ErrorIs(t, err, channel.ErrRoomClosed)
}

func TestService_Watch_HostSeesGuestJoinAndLeave(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := room.NewService(channel.NewMemory(), nil)

	created, err := svc.Create(ctx, speaker("host"))
	require.NoError(t, err)

	updates, err := svc.Watch(ctx, created.Code, domain.RoleHost)
	require.NoError(t, err)

	up := recvUpdate(t, updates)
	assert.Equal(t, domain.RoomWaiting, up.Status)
	assert.Nil(t, up.Peer, "no peer while waiting")

	guest := listener("guest")
	_, err = svc.Join(ctx, created.Code, guest)
	require.NoError(t, err)

	up = recvUpdate(t, updates)
	assert.Equal(t, domain.RoomConnected, up.Status)
	require.NotNil(t, up.Peer)
	assert.Equal(t, guest.ID, up.Peer.ID)

	require.NoError(t, svc.Leave(ctx, created.Code))

	up = recvUpdate(t, updates)
	assert.Equal(t, domain.RoomEnded, up.Status)
	assert.Nil(t, up.Peer)

	select {
	case _, ok := <-updates:
		assert.False(t, ok, "stream should close after ended")
	case <-time.After(time.Second):
		t.Fatal("stream not closed after ended")
	}
}

func TestService_Watch_GuestSeesHostProfile(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := room.NewService(channel.NewMemory(), nil)
	host := speaker("host")

	created, err := svc.Create(ctx, host)
	require.NoError(t, err)

	updates, err := svc.Watch(ctx, created.Code, domain.RoleGuest)
	require.NoError(t, err)

	up := recvUpdate(t, updates)
	assert.Equal(t, domain.RoomWaiting, up.Status)
	require.NotNil(t, up.Peer, "guest's counterpart is the host")
	assert.Equal(t, host.ID, up.Peer.ID)
}

func recvUpdate(t *testing.T, ch <-chan room.StatusUpdate) room.StatusUpdate {
	t.Helper()
	select {
	case up, ok := <-ch:
		require.True(t, ok, "update stream closed early")
		return up
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status update")
		return room.StatusUpdate{}
	}
}
