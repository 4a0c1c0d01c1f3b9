package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User model
type User struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Username       string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Role           string          `gorm:"type:varchar(16);not null;default:user" json:"role"`
	CreditBalance  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"creditBalance"`
	PointBalance   int64           `gorm:"not null;default:0" json:"pointBalance"`
	TotalTopup     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"totalTopup"`
	LifetimePoints int64           `gorm:"not null;default:0" json:"lifetimePoints"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// IsAdmin check admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsVIP is derived from lifetime top-ups and never stored
func (u *User) IsVIP(threshold decimal.Decimal) bool {
	return threshold.IsPositive() && u.TotalTopup.GreaterThanOrEqual(threshold)
}

// HasGoldBorder is derived from lifetime points and never stored
func (u *User) HasGoldBorder(threshold int64) bool {
	return threshold > 0 && u.LifetimePoints >= threshold
}
