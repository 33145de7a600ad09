package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	RoleSpeaker  UserRole = "SPEAKER"
	RoleListener UserRole = "LISTENER"
)

// Profile holds the onboarded user's attributes. It is created once at
// onboarding, mutated only to accumulate earnings, and deleted on reset.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AgeRange  string    `json:"age_range"`
	Role      UserRole  `json:"role"`
	Mood      string    `json:"mood"`
	Bio       string    `json:"bio"`
	Topics    []string  `json:"topics"`
	Earnings  int       `json:"earnings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewProfile(name, ageRange string, role UserRole, mood, bio string, topics []string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		ID:        uuid.New(),
		Name:      name,
		AgeRange:  ageRange,
		Role:      role,
		Mood:      mood,
		Bio:       bio,
		Topics:    topics,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r UserRole) Valid() bool {
	return r == RoleSpeaker || r == RoleListener
}
