package users

import (
	"regexp"
	"time"
)

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// MinPasswordLength is the weakest password accepted on create, reset, and
// change.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidRole reports whether the value names a known role.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

// ValidEmail reports whether the value looks like an email address. Storage
// is case-sensitive; the address is still treated as a unique key.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Account models a persisted user account. Email uniqueness is enforced by a
// pre-check at write time, not a database constraint.
type Account struct {
	ID           string     `gorm:"column:id;primaryKey;size:190;not null"`
	Email        string     `gorm:"column:email;size:320;not null;index"`
	PasswordHash string     `gorm:"column:password_hash;size:72;not null" json:"-"`
	Name         string     `gorm:"column:name;size:320;not null"`
	Role         string     `gorm:"column:role;size:32;not null;default:user"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "accounts"
}
