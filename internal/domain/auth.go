package domain

import "time"

type User struct {
	ID    string
	Email string
}

type Session struct {
	AccessToken string
}

// Credentials is what a sign-in leaves behind in the credential store.
type Credentials struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

func (c Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
