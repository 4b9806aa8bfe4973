package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"settlement-backend/internal/models"
)

type AssetRepository interface {
	Create(ctx context.Context, a *models.Asset) error
	GetByTicker(ctx context.Context, ticker string) (*models.Asset, error)
	List(ctx context.Context) ([]models.Asset, error)
	Delete(ctx context.Context, ticker string) error
}

type gormAssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &gormAssetRepository{db: db}
}

func (r *gormAssetRepository) Create(ctx context.Context, a *models.Asset) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *gormAssetRepository) GetByTicker(ctx context.Context, ticker string) (*models.Asset, error) {
	var a models.Asset
	err := r.db.WithContext(ctx).Where("ticker = ?", ticker).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormAssetRepository) List(ctx context.Context) ([]models.Asset, error) {
	var assets []models.Asset
	err := r.db.WithContext(ctx).Order("ticker ASC").Find(&assets).Error
	return assets, err
}

func (r *gormAssetRepository) Delete(ctx context.Context, ticker string) error {
	return r.db.WithContext(ctx).Where("ticker = ?", ticker).Delete(&models.Asset{}).Error
}
