// Package tokens generates the short-lived credentials handed out by the
// verification, client provisioning and sharing flows and decides when they
// have lapsed.
package tokens

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	Digits        = "0123456789"
	UpperAlphaNum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	LowerAlphaNum = "abcdefghijklmnopqrstuvwxyz0123456789"
	OTPLength     = 6
	AccessCodeLen = 8
	ShareTokenLen = 16
	OTPTTL        = 10 * time.Minute
	AccessCodeTTL = 7 * 24 * time.Hour
)

// Clock is the time source shared by generation and expiry checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reports the wall clock in UTC.
var SystemClock Clock = systemClock{}

// Generator draws tokens from a cryptographic source and stamps expiries from
// its clock.
type Generator struct {
	clock Clock
	rand  io.Reader
}

func NewGenerator(clock Clock) *Generator {
	if clock == nil {
		clock = SystemClock
	}
	return &Generator{clock: clock, rand: rand.Reader}
}

// Default uses the system clock and crypto/rand.
var Default = NewGenerator(SystemClock)

// OTP returns a numeric one-time password. A non-positive length means 6.
func (g *Generator) OTP(length int) (string, error) {
	if length <= 0 {
		length = OTPLength
	}
	return g.draw(Digits, length)
}

// AccessCode returns an uppercase alphanumeric code. A non-positive length
// means 8.
func (g *Generator) AccessCode(length int) (string, error) {
	if length <= 0 {
		length = AccessCodeLen
	}
	return g.draw(UpperAlphaNum, length)
}

// ShareToken returns a lowercase alphanumeric share link token. A
// non-positive length means 16.
func (g *Generator) ShareToken(length int) (string, error) {
	if length <= 0 {
		length = ShareTokenLen
	}
	return g.draw(LowerAlphaNum, length)
}

func (g *Generator) draw(alphabet string, length int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(g.rand, limit)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// Now is the generator's notion of the current time.
func (g *Generator) Now() time.Time {
	return g.clock.Now()
}

// OTPExpiry returns now + d, with d defaulting to ten minutes.
func (g *Generator) OTPExpiry(d time.Duration) time.Time {
	if d <= 0 {
		d = OTPTTL
	}
	return g.clock.Now().Add(d)
}

// AccessExpiry returns now + d, with d defaulting to seven days.
func (g *Generator) AccessExpiry(d time.Duration) time.Time {
	if d <= 0 {
		d = AccessCodeTTL
	}
	return g.clock.Now().Add(d)
}

// IsExpired reports whether expiry has passed. A nil expiry never expires.
func (g *Generator) IsExpired(expiry *time.Time) bool {
	return IsExpiredAt(expiry, g.clock.Now())
}

// IsExpiredAt reports whether now is strictly after expiry.
func IsExpiredAt(expiry *time.Time, now time.Time) bool {
	if expiry == nil || expiry.IsZero() {
		return false
	}
	return now.After(*expiry)
}

func IsExpired(expiry *time.Time) bool { return Default.IsExpired(expiry) }

func GenerateOTP() (string, error) { return Default.OTP(OTPLength) }
func GenerateAccessCode() (string, error) { return Default.AccessCode(AccessCodeLen) }
func GenerateShareToken() (string, error) { return Default.ShareToken(ShareTokenLen) }
