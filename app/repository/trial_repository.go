package repository

import (
	"github.com/nutricoachhq/NutriCoach/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormTrialRepository struct {
	db *gorm.DB
}

// NewTrialRepository creates a trial repository backed by GORM.
func NewTrialRepository(db *gorm.DB) TrialRepository {
	return &gormTrialRepository{db: db}
}

// CreateIfAbsent inserts the trial row unless the user already has one.
// DO NOTHING on conflict keeps trial_used monotonic and the window fixed.
func (r *gormTrialRepository) CreateIfAbsent(trial *models.Trial) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoNothing: true,
	}).Create(trial)
	if tx.Error != nil {
		return false, tx.Error
	}

	created := tx.RowsAffected > 0
	// Reload so callers always see the stored row, not the attempted one.
	if err := r.db.Where("user_id = ?", trial.UserID).First(trial).Error; err != nil {
		return false, err
	}
	return created, nil
}

func (r *gormTrialRepository) GetByUserID(userID uint) (*models.Trial, error) {
	var trial models.Trial
	err := r.db.Where("user_id = ?", userID).First(&trial).Error
	if err != nil {
		return nil, err
	}
	return &trial, nil
}
