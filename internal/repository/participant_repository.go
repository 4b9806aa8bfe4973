package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"settlement-backend/internal/models"
)

type ParticipantRepository interface {
	Create(ctx context.Context, p *models.Participant) error
	GetByAddress(ctx context.Context, address string) (*models.Participant, error)
	UpdateLastRequest(ctx context.Context, address string, at time.Time) error
	AppendRequestID(ctx context.Context, address, requestID string) error
}

type gormParticipantRepository struct {
	db *gorm.DB
}

func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &gormParticipantRepository{db: db}
}

func (r *gormParticipantRepository) Create(ctx context.Context, p *models.Participant) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormParticipantRepository) GetByAddress(ctx context.Context, address string) (*models.Participant, error) {
	var p models.Participant
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormParticipantRepository) UpdateLastRequest(ctx context.Context, address string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Participant{}).
		Where("address = ?", address).
		Update("last_request_at", at).Error
}

// AppendRequestID reads, appends and writes back under one transaction so
// concurrent appends for the same participant cannot drop entries.
func (r *gormParticipantRepository) AppendRequestID(ctx context.Context, address, requestID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Participant
		if err := tx.Where("address = ?", address).First(&p).Error; err != nil {
			return err
		}
		ids := append(p.RequestIDList(), requestID)
		if err := p.SetRequestIDList(ids); err != nil {
			return err
		}
		return tx.Model(&models.Participant{}).
			Where("address = ?", address).
			Update("request_ids", p.RequestIDs).Error
	})
}
