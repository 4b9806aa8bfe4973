package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"settlement-backend/internal/models"
)

var ErrNotFound = errors.New("record not found")

// RequestRepository persists settlement requests. MarkTerminal is the
// exactly-once primitive: it transitions a request out of Pending with an
// optimistic status guard and reports whether this call won the transition.
type RequestRepository interface {
	Create(ctx context.Context, req *models.Request) error
	GetByID(ctx context.Context, id string) (*models.Request, error)
	FindByRequester(ctx context.Context, requester string, limit, offset int) ([]models.Request, error)
	FindPendingExpired(ctx context.Context, assetID uint64, now time.Time, limit int) ([]models.Request, error)
	MarkTerminal(ctx context.Context, id string, status models.RequestStatus, resultAmount, reason string) (bool, error)
}

type gormRequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &gormRequestRepository{db: db}
}

func (r *gormRequestRepository) Create(ctx context.Context, req *models.Request) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *gormRequestRepository) GetByID(ctx context.Context, id string) (*models.Request, error) {
	var req models.Request
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormRequestRepository) FindByRequester(ctx context.Context, requester string, limit, offset int) ([]models.Request, error) {
	var reqs []models.Request
	err := r.db.WithContext(ctx).
		Where("requester = ?", requester).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&reqs).Error
	return reqs, err
}

func (r *gormRequestRepository) FindPendingExpired(ctx context.Context, assetID uint64, now time.Time, limit int) ([]models.Request, error) {
	var reqs []models.Request
	err := r.db.WithContext(ctx).
		Where("asset_id = ? AND status = ? AND deadline <= ?", assetID, models.RequestStatusPending, now).
		Order("deadline ASC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}

func (r *gormRequestRepository) MarkTerminal(ctx context.Context, id string, status models.RequestStatus, resultAmount, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Request{}).
		Where("id = ? AND status = ?", id, models.RequestStatusPending).
		Updates(map[string]interface{}{
			"status":        status,
			"result_amount": resultAmount,
			"refund_reason": reason,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
