package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

// User type segments. Patients get the provider-independent trial window,
// professionals do not.
const (
	UserTypePatient      = "patient"
	UserTypeProfessional = "professional"
)

type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	UserType         string         `gorm:"type:varchar(20);default:'patient';index" json:"user_type" validate:"oneof=patient professional"`
	Role             string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status           string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	StripeCustomerID string         `gorm:"type:varchar(191);default:null;index" json:"-"`
	APIKeyHash       string         `gorm:"type:varchar(64);default:null;index" json:"-"`
	APIKeyLastUsedAt *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt      *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsTrialEligible reports whether the user's segment gets the
// provider-independent trial.
func (u *User) IsTrialEligible() bool {
	return u.UserType == UserTypePatient
}

// NormalizeUserType maps arbitrary input to one of the two segments,
// defaulting to the non-privileged patient segment.
func NormalizeUserType(raw string) string {
	if raw == UserTypeProfessional {
		return UserTypeProfessional
	}
	return UserTypePatient
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey creates a new random API key and returns the raw key plus
// its hash. Only the hash is persisted.
func GenerateAPIKey() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	raw := hex.EncodeToString(buf)
	return raw, HashAPIKey(raw), nil
}
