package models

import "time"

// User represents an account that owns a portfolio collection.
// PasswordHash is a bcrypt hash; the plaintext never leaves the auth handler.
type User struct {
	UserID       string    `json:"user_id" badgerhold:"key"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}
