package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("credential not found")
	QueryTimeoutDuration = time.Second * 5
)

type Purpose string

// MaxAttempts is how many wrong guesses a credential absorbs before it is
// refused outright. Issuing a fresh one resets the count.
const MaxAttempts = 5

const (
	PurposeEmailVerification Purpose = "email_verification"
	PurposeClientAccess      Purpose = "client_access"
)

// Credential is a hashed ephemeral secret bound to one user and purpose.
// Issuing a new one for the same pair replaces the old one.
type Credential struct {
	UserID    int64
	Purpose   Purpose
	TokenHash string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func (c *Credential) Locked() bool {
	return c.Attempts >= MaxAttempts
}

// Matches compares token against the stored hash in constant time.
func (c *Credential) Matches(token string) bool {
	return subtle.ConstantTimeCompare([]byte(c.TokenHash), []byte(HashToken(token))) == 1
}
