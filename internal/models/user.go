package models

import "time"

// User is the single identity record. Email doubles as the login name
// and is unique. PasswordHash holds the encoded argon2id hash, never
// the plaintext. UpdatedAt stays nil until the first profile update.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	IsActive     bool
	IsSuperuser  bool
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}
