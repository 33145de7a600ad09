package profile_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/profile"
	"github.com/quietline/quietline/internal/repository"
)

func newService() *profile.Service {
	return profile.NewService(repository.NewInMemoryProfileRepository(), nil)
}

func TestService_Onboard(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	p, err := svc.Onboard(ctx, "  sam  ", "25-34", domain.RoleSpeaker, "anxious", "new in town", []string{"hiking"})
	require.NoError(t, err)
	assert.Equal(t, "sam", p.Name, "name is trimmed")
	assert.Equal(t, domain.RoleSpeaker, p.Role)
	assert.Zero(t, p.Earnings)
	assert.NotEqual(t, uuid.Nil, p.ID)

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestService_Onboard_Validation(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	_, err := svc.Onboard(ctx, "   ", "25-34", domain.RoleSpeaker, "", "", nil)
	assert.ErrorIs(t, err, profile.ErrNameRequired)

	_, err = svc.Onboard(ctx, "sam", "25-34", domain.UserRole("ADMIN"), "", "", nil)
	assert.ErrorIs(t, err, profile.ErrInvalidRole)
}

func TestService_AddEarnings(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	p, err := svc.Onboard(ctx, "lee", "35-44", domain.RoleListener, "calm", "", nil)
	require.NoError(t, err)

	updated, err := svc.AddEarnings(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Earnings)

	updated, err = svc.AddEarnings(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, updated.Earnings, "earnings accumulate")
}

func TestService_AddEarnings_Rejections(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	listener, err := svc.Onboard(ctx, "lee", "35-44", domain.RoleListener, "", "", nil)
	require.NoError(t, err)
	speaker, err := svc.Onboard(ctx, "sam", "25-34", domain.RoleSpeaker, "", "", nil)
	require.NoError(t, err)

	_, err = svc.AddEarnings(ctx, listener.ID, 0)
	assert.ErrorIs(t, err, profile.ErrInvalidEarnings)
	_, err = svc.AddEarnings(ctx, listener.ID, -2)
	assert.ErrorIs(t, err, profile.ErrInvalidEarnings)

	_, err = svc.AddEarnings(ctx, speaker.ID, 5)
	assert.ErrorIs(t, err, profile.ErrNotListener)

	_, err = svc.AddEarnings(ctx, uuid.New(), 5)
	assert.ErrorIs(t, err, repository.ErrProfileNotFound)
}

func TestService_Reset_Idempotent(t *testing.T) {
	t.Parallel()

	svc := newService()
	ctx := context.Background()

	p, err := svc.Onboard(ctx, "sam", "25-34", domain.RoleSpeaker, "", "", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, repository.ErrProfileNotFound)

	// A second reset of the same profile succeeds.
	require.NoError(t, svc.Reset(ctx, p.ID))
}
