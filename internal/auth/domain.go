package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/pocketledger/pocketledger/internal/platform/httpx"
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("%w: incorrect username or password", httpx.ErrUnauthorized)
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", httpx.ErrDuplicate)
	// ErrUserNotFound indicates no active user matched.
	ErrUserNotFound = errors.New("user not found")
)

// User represents an account. Soft-deleted users cannot log in.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u != nil && !u.IsDeleted
}

// NewUser carries the fields persisted on registration.
type NewUser struct {
	Email        string
	FullName     string
	PasswordHash string
}

// AccessToken is the result of a successful login.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}
