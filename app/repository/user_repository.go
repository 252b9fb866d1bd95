package repository

import (
	"time"

	"github.com/nutricoachhq/NutriCoach/app/models"
	"gorm.io/gorm"
)

type gormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	var user models.User
	err := r.db.Where("api_key_hash = ?", hash).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) ListWithEmail() ([]models.User, error) {
	var users []models.User
	err := r.db.Where("email <> ''").Order("id ASC").Find(&users).Error
	return users, err
}

func (r *gormUserRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

func (r *gormUserRepository) TouchAPIKeyUsage(id uint) error {
	now := time.Now()
	return r.db.Model(&models.User{}).
		Where("id = ?", id).
		Update("api_key_last_used_at", &now).Error
}
