package models

import (
	"time"
)

// User is an account that owns monitors. The password is stored only as a
// bcrypt hash.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
