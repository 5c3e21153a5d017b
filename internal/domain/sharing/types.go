package sharing

import (
	"errors"
	"time"

	"github.com/speps/go-hashids/v2"
)

var (
	ErrNotFound          = errors.New("share link not found")
	ErrInvalidID         = errors.New("invalid share link id")
	QueryTimeoutDuration = time.Second * 5
)

// Link grants guest access to an opaque resource reference. Only the hash of
// the token is kept; a nil ExpiresAt never expires.
type Link struct {
	ID          int64      `json:"-"`
	OwnerID     int64      `json:"owner_id"`
	Resource    string     `json:"resource"`
	TokenHash   string     `json:"-"`
	ExpiresAt   *time.Time `json:"expires_at"`
	AccessCount int64      `json:"access_count"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IDCodec turns sequential link ids into opaque public ids.
type IDCodec struct {
	h *hashids.HashID
}

func NewIDCodec(salt string) (*IDCodec, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8

	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, err
	}
	return &IDCodec{h: h}, nil
}

func (c *IDCodec) Encode(id int64) (string, error) {
	return c.h.EncodeInt64([]int64{id})
}

func (c *IDCodec) Decode(public string) (int64, error) {
	ids, err := c.h.DecodeInt64WithError(public)
	if err != nil || len(ids) != 1 {
		return 0, ErrInvalidID
	}
	return ids[0], nil
}
