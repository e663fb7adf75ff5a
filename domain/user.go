package domain

import (
	"strings"
	"time"
)

// User represents a Webmaker account. Accounts are owned by the surrounding
// service; the login protocol only reads them and touches LastLoggedIn on a
// successful handshake.
type User struct {
	ID           string    `bson:"_id,omitempty"`
	Email        string    `bson:"email"`
	Username     string    `bson:"username"` // always stored lowercase
	FullName     string    `bson:"full_name,omitempty"`
	Verified     bool      `bson:"verified"`
	LastLoggedIn time.Time `bson:"last_logged_in,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// SessionView is the subset of user fields handed out once a login
// handshake completes.
type SessionView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Verified bool   `json:"verified"`
}

// ForSession returns the session representation of the user.
func (u *User) ForSession() SessionView {
	return SessionView{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		FullName: u.FullName,
		Verified: u.Verified,
	}
}

// NormalizeUsername lowercases a username the way it is stored.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
