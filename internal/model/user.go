package model

import "time"

// Roles a user can hold. Technicians exist for machine maintenance
// workflows; only admins reach the admin API surface.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
)

type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	FirstName    string    `gorm:"size:150" json:"first_name"`
	LastName     string    `gorm:"size:150" json:"last_name"`
	Phone        string    `gorm:"size:15" json:"phone"`
	Role         string    `gorm:"size:20;not null;default:'user'" json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string { return "app_user" }

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
