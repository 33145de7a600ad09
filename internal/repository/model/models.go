package model

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	AgeRange  string    `gorm:"size:32"`
	Role      string    `gorm:"size:16;not null"`
	Mood      string    `gorm:"size:64"`
	Bio       string    `gorm:"type:text"`
	Topics    string    `gorm:"type:text"` // JSON-encoded string list
	Earnings  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
