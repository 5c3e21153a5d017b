package users

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateEmail    = errors.New("a user with that email already exists")
	ErrNoPassword        = errors.New("user has no usable password")
	QueryTimeoutDuration = time.Second * 5
)

// User is an identity record. Privilege lives in the role ledger, never here.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Password     password   `json:"-"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	IsVerified   bool       `json:"is_verified"`
	RefreshToken string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
}

// NormalizeEmail folds an address to the identity key used for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type password struct {
	text *string
	hash []byte
}

func (p *password) Set(text string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(text), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	p.text = &text
	p.hash = hash

	return nil
}

func (p *password) Compare(text string) error {
	if len(p.hash) == 0 {
		return ErrNoPassword
	}
	return bcrypt.CompareHashAndPassword(p.hash, []byte(text))
}

// Usable is false for provisioned accounts that have not redeemed their
// access code yet.
func (p *password) Usable() bool {
	return len(p.hash) > 0
}
