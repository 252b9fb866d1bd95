package repository

import (
	"github.com/nutricoachhq/NutriCoach/app/models"
	"gorm.io/gorm"
)

type gormPlanMappingRepository struct {
	db *gorm.DB
}

// NewPlanMappingRepository creates a plan mapping repository backed by GORM.
func NewPlanMappingRepository(db *gorm.DB) PlanMappingRepository {
	return &gormPlanMappingRepository{db: db}
}

func (r *gormPlanMappingRepository) FindActiveByPriceID(priceID string) (*models.PlanMapping, error) {
	var m models.PlanMapping
	err := r.db.
		Where("price_id = ? AND is_active = ?", priceID, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
