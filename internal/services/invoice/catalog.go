package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/xelth-com/eckrentgo/internal/models"
	"github.com/xelth-com/eckrentgo/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPropertyCatalog reads property pricing from the properties table
type GormPropertyCatalog struct {
	db *gorm.DB
}

// NewGormPropertyCatalog creates the catalog
func NewGormPropertyCatalog(db *gorm.DB) *GormPropertyCatalog {
	return &GormPropertyCatalog{db: db}
}

// Snapshot returns the pricing view of a property
func (c *GormPropertyCatalog) Snapshot(ctx context.Context, propertyID string) (models.PropertySnapshot, error) {
	var p models.Property
	err := c.db.WithContext(ctx).First(&p, "id = ?", propertyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PropertySnapshot{}, fmt.Errorf("property %s: %w", propertyID, repository.ErrNotFound)
	}
	if err != nil {
		return models.PropertySnapshot{}, &repository.StorageError{Op: "load property", Err: err}
	}
	return p.Snapshot(), nil
}

// Upsert inserts or replaces the pricing of a property
func (c *GormPropertyCatalog) Upsert(ctx context.Context, p *models.Property) error {
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "address", "owner_id", "monthly_rent", "daily_rent", "deposit", "currency", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return &repository.StorageError{Op: "upsert property", Err: err}
	}
	return nil
}
