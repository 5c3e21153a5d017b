package profiles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPhone(t *testing.T) {
	valid := []string{"+14155552671", "415-555-2671", "977 9841234567", "123456789"}
	for _, p := range valid {
		assert.Truef(t, ValidPhone(p), "%q should be valid", p)
	}

	invalid := []string{"12345", "phone", "+1-415-555-26711234567", ""}
	for _, p := range invalid {
		assert.Falsef(t, ValidPhone(p), "%q should be invalid", p)
	}
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p := &Profile{UserID: 1, Name: "Ana"}
	require.NoError(t, s.Create(ctx, p))
	assert.False(t, p.CreatedAt.IsZero())
	assert.Error(t, s.Create(ctx, &Profile{UserID: 1, Name: "dup"}))

	require.NoError(t, s.Update(ctx, &Profile{UserID: 1, Name: "Ana B", Company: "Acme", Phone: "+14155552671"}))

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ana B", got.Name)
	assert.Equal(t, "Acme", got.Company)

	assert.ErrorIs(t, s.Update(ctx, &Profile{UserID: 2}), ErrNotFound)

	require.NoError(t, s.Delete(ctx, 1))
	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_GetMany(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Create(ctx, &Profile{UserID: 1, Name: "Ana"}))
	require.NoError(t, s.Create(ctx, &Profile{UserID: 3, Name: "Bo"}))

	got, err := s.GetMany(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ana", got[1].Name)
	assert.Equal(t, "Bo", got[3].Name)
	assert.Nil(t, got[2])

	empty, err := s.GetMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
