package model

import (
	"crypto/subtle"
	"time"

	"medislot/pkg/auth"
)

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"role"`
	Verified     bool       `json:"isVerified"`
	Challenge    *Challenge `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (u *User) Summary() ActorSummary {
	return ActorSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Challenge is a pending one-time passcode. It is replaced or cleared as a whole.
type Challenge struct {
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether the challenge is no longer usable at now.
// A challenge expires exactly at its expiry instant.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *Challenge) Matches(code string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) == 1
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type VerifyRequest struct {
	UserID string `json:"userId" validate:"required,mongodb"`
	Code   string `json:"otp" validate:"required,len=6,numeric"`
}

type ResendRequest struct {
	UserID string `json:"userId" validate:"required,mongodb"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is the result of a successful verification or login.
type Session struct {
	User      *User
	Token     string
	ExpiresAt time.Time
}
