// Package profile manages the onboarded user record: created once at
// onboarding, mutated only to accumulate listener earnings, removed on
// explicit reset.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/repository"
	"github.com/quietline/quietline/lib/logger/sl"
)

var (
	ErrNameRequired    = errors.New("name is required")
	ErrInvalidRole     = errors.New("role must be SPEAKER or LISTENER")
	ErrInvalidEarnings = errors.New("earnings amount must be positive")
	ErrNotListener     = errors.New("only listeners accumulate earnings")
)

type Service struct {
	profiles repository.ProfileRepository
	log      *slog.Logger
}

func NewService(profiles repository.ProfileRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{profiles: profiles, log: log}
}

// Onboard creates and persists a fresh profile.
func (s *Service) Onboard(ctx context.Context, name, ageRange string, role domain.UserRole, mood, bio string, topics []string) (*domain.Profile, error) {
	const op = "profile.onboard"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	profile := domain.NewProfile(name, ageRange, role, mood, bio, topics)
	if err := s.profiles.Create(ctx, profile); err != nil {
		s.log.Error("profile create failed", slog.String("op", op), sl.Err(err))
		return nil, err
	}

	s.log.Info("profile created",
		slog.String("op", op),
		slog.String("profile_id", profile.ID.String()),
		slog.String("role", string(role)),
	)
	return profile, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

// AddEarnings credits a listener after a qualifying session.
func (s *Service) AddEarnings(ctx context.Context, id uuid.UUID, amount int) (*domain.Profile, error) {
	const op = "profile.earnings"

	if amount <= 0 {
		return nil, ErrInvalidEarnings
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if profile.Role != domain.RoleListener {
		return nil, ErrNotListener
	}

	profile.Earnings += amount
	profile.UpdatedAt = time.Now().UTC()
	if err := s.profiles.Update(ctx, profile); err != nil {
		s.log.Error("earnings update failed", slog.String("op", op), sl.Err(err))
		return nil, err
	}

	s.log.Info("earnings credited",
		slog.String("op", op),
		slog.String("profile_id", id.String()),
		slog.Int("amount", amount),
	)
	return profile, nil
}

// Reset deletes the profile. Deleting an absent profile is not an
// error: reset is idempotent.
func (s *Service) Reset(ctx context.Context, id uuid.UUID) error {
	const op = "profile.reset"
	if err := s.profiles.Delete(ctx, id); err != nil {
		s.log.Error("profile delete failed", slog.String("op", op), sl.Err(err))
		return err
	}
	s.log.Info("profile reset", slog.String("op", op), slog.String("profile_id", id.String()))
	return nil
}
