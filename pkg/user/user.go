// Package user manages traveler accounts and their profile.
package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLen = 72
)

var (
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")

	// ErrEmailTaken is returned by Create when the email is registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidInput wraps every registration validation failure.
	ErrInvalidInput = errors.New("invalid registration")
)

// User is a registered traveler.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	HashedPassword string     `json:"-"`
	Name           string     `json:"name,omitempty"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	Location       string     `json:"location,omitempty"`
	Description    string     `json:"description,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Registration is the input to NewUser.
type Registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// Store defines the interface for user persistence.
type Store interface {
	// Create inserts u. Returns ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, u *User) error

	// GetByEmail looks a user up by email, ignoring case.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID looks a user up by id.
	GetByID(ctx context.Context, id string) (*User, error)
}

// NewUser validates r and builds a user with a hashed password.
func NewUser(r Registration, now time.Time) (*User, error) {
	email, err := NormalizeEmail(r.Email)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(r.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: hash,
		Name:           strings.TrimSpace(r.Name),
		Location:       strings.TrimSpace(r.Location),
		Description:    strings.TrimSpace(r.Description),
		CreatedAt:      now.UTC(),
	}

	if r.DateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, r.DateOfBirth)
		if err != nil {
			return nil, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", ErrInvalidInput)
		}
		if dob.After(now) {
			return nil, fmt.Errorf("%w: date_of_birth is in the future", ErrInvalidInput)
		}
		u.DateOfBirth = &dob
	}
	return u, nil
}

// NormalizeEmail validates an address and lowercases it.
func NormalizeEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return strings.ToLower(addr.Address), nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return "", fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the user's hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)) == nil
}

// Age returns the user's age in whole years at now, or nil when the date
// of birth is unknown.
func (u *User) Age(now time.Time) *int {
	if u.DateOfBirth == nil {
		return nil
	}
	dob := *u.DateOfBirth
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return &age
}
