package models

import "time"

type Role string

const (
	RoleAdmin   Role = "Admin"
	RoleManager Role = "Manager"
	RoleAnalyst Role = "Analyst"
)

// RoleFromID maps the numeric role used by registration forms.
func RoleFromID(id int32) (Role, bool) {
	switch id {
	case 0:
		return RoleAdmin, true
	case 1:
		return RoleManager, true
	case 2:
		return RoleAnalyst, true
	}
	return "", false
}

type User struct {
	ID           int32      `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName    string     `gorm:"size:75;not null" json:"first_name"`
	LastName     string     `gorm:"size:75;not null" json:"last_name"`
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         Role       `gorm:"size:16;not null;index" json:"role"`
	IsVerified   bool       `gorm:"default:false" json:"is_verified"`
	CreatedAt    *time.Time `gorm:"autoCreateTime" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`

	Warehouses []Warehouse `gorm:"many2many:user_warehouses" json:"warehouses,omitempty"`
}

// PasswordResetToken is consumed on first successful use.
type PasswordResetToken struct {
	Token      string    `gorm:"primaryKey;size:64"`
	Expiration time.Time `gorm:"not null"`
	UserID     int32     `gorm:"index;not null"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}
