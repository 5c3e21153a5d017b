package profiles

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("profile not found")
	QueryTimeoutDuration = time.Second * 5

	phonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)
)

type Profile struct {
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Phone     string    `json:"phone"`
	Avatar    *string   `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidPhone accepts 9 to 15 digits with an optional leading "+" or "+1";
// spaces and dashes are ignored.
func ValidPhone(phone string) bool {
	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(phone)
	return phonePattern.MatchString(cleaned)
}
