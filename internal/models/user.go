package models

import (
	"regexp"
	"time"
)

// Gender of a registered user.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

var (
	userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,10}$`)
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Point is a value object holding a non-negative balance. Arithmetic returns
// new values; the embedded columns live on the user row.
type Point struct {
	Balance int64 `json:"balance"`
}

// Add returns a new Point with the amount added. Negative amounts are
// rejected as BAD_REQUEST.
func (p Point) Add(amount int64) (Point, error) {
	if amount < 0 {
		return p, NewAppError(ErrorBadRequest, "point amount must not be negative: %d", amount)
	}
	return Point{Balance: p.Balance + amount}, nil
}

// Subtract returns a new Point with the amount removed. Fails with
// INSUFFICIENT_POINT when balance < amount.
func (p Point) Subtract(amount int64) (Point, error) {
	if amount < 0 {
		return p, NewAppError(ErrorBadRequest, "point amount must not be negative: %d", amount)
	}
	if p.Balance < amount {
		return p, ErrInsufficientPoint
	}
	return Point{Balance: p.Balance - amount}, nil
}

// User is the identity aggregate. Created at signup, never deleted.
type User struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"` // unique, <=10 alphanumerics
	Email     string    `json:"email"`
	BirthDate time.Time `json:"birth_date"`
	Gender    Gender    `json:"gender"`
	Point     Point     `json:"point"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser validates identity fields and returns a user with a zero balance.
func NewUser(userID, email string, birthDate time.Time, gender Gender) (*User, error) {
	if !userIDPattern.MatchString(userID) {
		return nil, NewAppError(ErrorBadRequest, "user_id must be 1-10 alphanumerics: %q", userID)
	}
	if !emailPattern.MatchString(email) {
		return nil, NewAppError(ErrorBadRequest, "invalid email: %q", email)
	}
	if gender != GenderMale && gender != GenderFemale {
		return nil, NewAppError(ErrorBadRequest, "invalid gender: %q", gender)
	}
	return &User{
		UserID:    userID,
		Email:     email,
		BirthDate: birthDate,
		Gender:    gender,
		Point:     Point{},
	}, nil
}
