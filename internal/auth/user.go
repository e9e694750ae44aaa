package auth

import "time"

// User is one registered account. The password is stored only as a bcrypt hash.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex"`
	Email        string    `json:"email" gorm:"uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"column:hashed_password"`
	FullName     string    `json:"full_name"`
	Active       bool      `json:"is_active" gorm:"column:is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName keeps the table name the original schema used.
func (User) TableName() string { return "users" }
