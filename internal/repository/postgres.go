package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quietline/quietline/internal/domain"
	"github.com/quietline/quietline/internal/repository/model"
)

type PostgresProfileRepository struct {
	db *gorm.DB
}

func NewPostgresProfileRepository(db *gorm.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

func (r *PostgresProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile == nil {
		return errors.New("profile is nil")
	}

	return r.db.WithContext(ctx).Create(toModelProfile(profile)).Error
}

func (r *PostgresProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profile model.Profile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return toDomainProfile(&profile), nil
}

func (r *PostgresProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile == nil {
		return errors.New("profile is nil")
	}

	result := r.db.WithContext(ctx).Model(&model.Profile{}).
		Where("id = ?", profile.ID).
		Updates(toModelProfile(profile))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *PostgresProfileRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Delete(&model.Profile{}, "id = ?", id).Error
}

func toModelProfile(p *domain.Profile) *model.Profile {
	topics, _ := json.Marshal(p.Topics)
	return &model.Profile{
		ID:        p.ID,
		Name:      p.Name,
		AgeRange:  p.AgeRange,
		Role:      string(p.Role),
		Mood:      p.Mood,
		Bio:       p.Bio,
		Topics:    string(topics),
		Earnings:  p.Earnings,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toDomainProfile(m *model.Profile) *domain.Profile {
	var topics []string
	if m.Topics != "" {
		_ = json.Unmarshal([]byte(m.Topics), &topics)
	}
	return &domain.Profile{
		ID:        m.ID,
		Name:      m.Name,
		AgeRange:  m.AgeRange,
		Role:      domain.UserRole(m.Role),
		Mood:      m.Mood,
		Bio:       m.Bio,
		Topics:    topics,
		Earnings:  m.Earnings,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
