// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an identity: the account a creator logs in with.
//
// Username and Email are unique across all users. GitHubID is zero for
// accounts created through the signup form; the database stores it as NULL
// so the UNIQUE constraint only applies to linked GitHub accounts.
//
// WHY PasswordHash HAS json:"-"?
// The hash must never leave the server. Excluding it from JSON means a handler
// that accidentally encodes a User cannot leak it.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"` // bcrypt; empty for GitHub-only accounts
	GitHubID     int64     `json:"-"         db:"github_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
