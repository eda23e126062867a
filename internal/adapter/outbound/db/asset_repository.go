package db

import (
	"context"

	"github.com/jinzhu/gorm"

	"github.com/Jonathanamir1/WubHub-sub004/internal/domain"
	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

// AssetRepository is the GORM implementation of port.AssetRepository.
type AssetRepository struct {
	conn *gorm.DB
}

var _ port.AssetRepository = (*AssetRepository)(nil)

func NewAssetRepository(conn *gorm.DB) *AssetRepository {
	return &AssetRepository{conn: conn}
}

func (r *AssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	if err := r.conn.Create(asset).Error; err != nil {
		if isDuplicateEntry(err) {
			return port.ErrAssetExists
		}
		return err
	}
	return nil
}

func (r *AssetRepository) GetBySession(ctx context.Context, sessionID string) (*domain.Asset, error) {
	var asset domain.Asset
	if err := r.conn.Where("session_id = ?", sessionID).First(&asset).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, port.ErrAssetNotFound
		}
		return nil, err
	}
	return &asset, nil
}
