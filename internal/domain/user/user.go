// Package user defines the user domain model for authentication.
package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/templehubsakshi/FlowSpace/internal/domain"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // never serialized
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Ref is the display identity embedded in tasks, comments and presence events.
type Ref struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Ref returns the display identity of u.
func (u *User) Ref() *Ref {
	return &Ref{ID: u.ID, Name: u.Name, Email: u.Email}
}

// RegisterRequest is the input for creating an account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// Normalize trims whitespace and lower-cases the email.
func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

// Validate checks that the RegisterRequest has all required fields.
func (r *RegisterRequest) Validate() error {
	if r.Name == "" {
		return domain.Invalid("name is required")
	}
	if r.Email == "" {
		return domain.Invalid("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return domain.Invalid("invalid email format")
	}
	if len(r.Password) < MinPasswordLength {
		return domain.Invalid("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// LoginRequest is the input for user authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` //nolint:gosec // request field, not a hardcoded secret
}

// LoginResponse carries the issued access token and the authenticated user.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// TokenClaims is the identity carried by a verified access token.
type TokenClaims struct {
	UserID string
	Email  string
	Name   string
}
