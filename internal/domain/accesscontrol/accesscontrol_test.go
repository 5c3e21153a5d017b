package accesscontrol

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" core ")
	require.NoError(t, err)
	assert.Equal(t, RoleCore, r)

	_, err = ParseRole("superuser")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestRoleOrdering(t *testing.T) {
	assert.Greater(t, RoleAdmin.Rank(), RoleCore.Rank())
	assert.Greater(t, RoleCore.Rank(), RoleClient.Rank())
	assert.Greater(t, RoleClient.Rank(), RoleGuest.Rank())
	assert.Zero(t, Role("OWNER").Rank())

	assert.True(t, RoleAdmin.AtLeast(RoleCore))
	assert.True(t, RoleCore.AtLeast(RoleCore))
	assert.False(t, RoleClient.AtLeast(RoleCore))
	assert.False(t, Role("").AtLeast(RoleGuest))
}

func TestAssign_ThenDuplicateFails(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	for _, role := range Hierarchy {
		a, err := ledger.Assign(ctx, 1, role, ptr(99))
		require.NoError(t, err)
		assert.Equal(t, role, a.Role)
		assert.Equal(t, int64(99), *a.AssignedBy)
		assert.False(t, a.AssignedAt.IsZero())

		has, err := ledger.HasRole(ctx, 1, role)
		require.NoError(t, err)
		assert.True(t, has)

		_, err = ledger.Assign(ctx, 1, role, nil)
		assert.ErrorIs(t, err, ErrDuplicateRole)
	}
}

func TestAssign_RejectsUnknownRole(t *testing.T) {
	_, err := NewMemoryStore().Assign(context.Background(), 1, Role("ROOT"), nil)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestAssign_ConcurrentSamePairHasOneWinner(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Assign(ctx, 7, RoleCore, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateRole):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dup)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	assert.ErrorIs(t, ledger.Revoke(ctx, 1, RoleGuest), ErrRoleNotFound)

	_, err := ledger.Assign(ctx, 1, RoleGuest, nil)
	require.NoError(t, err)
	require.NoError(t, ledger.Revoke(ctx, 1, RoleGuest))

	role, ok, err := PrimaryRole(ctx, ledger, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, role)

	// re-grant is a fresh row
	again, err := ledger.Assign(ctx, 1, RoleGuest, nil)
	require.NoError(t, err)
	assert.NotZero(t, again.ID)
}

func TestPrimaryRole_RespectsHierarchy(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	_, _ = ledger.Assign(ctx, 1, RoleGuest, nil)
	_, _ = ledger.Assign(ctx, 1, RoleCore, nil)

	role, ok, err := PrimaryRole(ctx, ledger, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RoleCore, role)
}

func TestPrimaryRole_NoneIffNoAssignment(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	_, ok, err := PrimaryRole(ctx, ledger, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, r := range Hierarchy {
		l := NewMemoryStore()
		_, _ = l.Assign(ctx, 42, r, nil)
		got, ok, err := PrimaryRole(ctx, l, 42)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, r, got)
	}
}

func TestScenario_AdminAndCore(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	_, err := ledger.Assign(ctx, 5, RoleAdmin, nil)
	require.NoError(t, err)
	_, err = ledger.Assign(ctx, 5, RoleCore, nil)
	require.NoError(t, err)

	roles, err := ledger.ListRoles(ctx, 5)
	require.NoError(t, err)
	assert.ElementsMatch(t, []Role{RoleAdmin, RoleCore}, roles)

	role, _, err := PrimaryRole(ctx, ledger, 5)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, role)

	require.NoError(t, ledger.Revoke(ctx, 5, RoleAdmin))

	role, _, err = PrimaryRole(ctx, ledger, 5)
	require.NoError(t, err)
	assert.Equal(t, RoleCore, role)
}

func TestDetachUser_ClearsAssignerKeepsRow(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	const admin, client = int64(1), int64(2)
	_, _ = ledger.Assign(ctx, admin, RoleAdmin, nil)
	_, err := ledger.Assign(ctx, client, RoleClient, ptr(admin))
	require.NoError(t, err)

	require.NoError(t, ledger.DetachUser(ctx, admin))

	has, _ := ledger.HasRole(ctx, admin, RoleAdmin)
	assert.False(t, has, "subject rows cascade")

	a, err := ledger.GetAssignment(ctx, client, RoleClient)
	require.NoError(t, err, "assigned row survives")
	assert.Nil(t, a.AssignedBy)
}

func TestListAssignments_SortedAndCopied(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()
	_, _ = ledger.Assign(ctx, 3, RoleGuest, ptr(1))
	_, _ = ledger.Assign(ctx, 3, RoleAdmin, ptr(1))
	_, _ = ledger.Assign(ctx, 3, RoleClient, ptr(1))

	list, err := ledger.ListAssignments(ctx, 3)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []Role{RoleAdmin, RoleClient, RoleGuest}, []Role{list[0].Role, list[1].Role, list[2].Role})

	*list[0].AssignedBy = 777
	fresh, _ := ledger.GetAssignment(ctx, 3, RoleAdmin)
	assert.Equal(t, int64(1), *fresh.AssignedBy)
}

type stubView struct {
	held map[Role]bool
	err  error
	hits []Role
}

func (s *stubView) HasRole(_ context.Context, _ int64, role Role) (bool, error) {
	s.hits = append(s.hits, role)
	return s.held[role], s.err
}

func TestPrimaryRole_AgainstSyntheticView(t *testing.T) {
	view := &stubView{held: map[Role]bool{RoleClient: true, RoleGuest: true}}

	role, ok, err := PrimaryRole(context.Background(), view, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, RoleClient, role)
	assert.Equal(t, []Role{RoleAdmin, RoleCore, RoleClient}, view.hits, "stops at the first hit")
}

func TestPrimaryRole_PropagatesStoreError(t *testing.T) {
	boom := errors.New("connection reset")
	_, _, err := PrimaryRole(context.Background(), &stubView{err: boom}, 1)
	assert.ErrorIs(t, err, boom)
}

func TestHighest(t *testing.T) {
	r, ok := Highest([]Role{RoleGuest, RoleClient, RoleCore})
	assert.True(t, ok)
	assert.Equal(t, RoleCore, r)

	_, ok = Highest(nil)
	assert.False(t, ok)
}

func TestRolesFor_Batch(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryStore()

	_, _ = ledger.Assign(ctx, 1, RoleClient, nil)
	_, _ = ledger.Assign(ctx, 1, RoleCore, nil)
	_, _ = ledger.Assign(ctx, 2, RoleGuest, nil)
	_, _ = ledger.Assign(ctx, 3, RoleAdmin, nil)

	got, err := ledger.RolesFor(ctx, []int64{1, 2, 4})
	require.NoError(t, err)
	assert.ElementsMatch(t, []Role{RoleClient, RoleCore}, got[1])
	assert.Equal(t, []Role{RoleGuest}, got[2])
	assert.NotContains(t, got, int64(3))
	assert.NotContains(t, got, int64(4))

	primary, ok := Highest(got[1])
	require.True(t, ok)
	assert.Equal(t, RoleCore, primary)

	_, ok = Highest(got[4])
	assert.False(t, ok)
}
