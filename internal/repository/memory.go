package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/quietline/quietline/internal/domain"
)

type InMemoryProfileRepository struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*domain.Profile
}

func NewInMemoryProfileRepository() *InMemoryProfileRepository {
	return &InMemoryProfileRepository{
		profiles: make(map[uuid.UUID]*domain.Profile),
	}
}

func (r *InMemoryProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile == nil {
		return errors.New("profile is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *profile
	r.profiles[profile.ID] = &clone
	return nil
}

func (r *InMemoryProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	clone := *profile
	return &clone, nil
}

func (r *InMemoryProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile == nil {
		return errors.New("profile is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[profile.ID]; !ok {
		return ErrProfileNotFound
	}
	clone := *profile
	r.profiles[profile.ID] = &clone
	return nil
}

func (r *InMemoryProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.profiles, id)
	return nil
}
