package service

import (
	"bitwise74/docstring-api/internal/model"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCreatesGuestOnce(t *testing.T) {
	conn := newTestDB(t)
	s := &Identities{DB: conn, Now: clock(testNow)}
	ctx := context.Background()

	first, err := s.ResolveOrCreateIdentity(ctx, "", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, model.RoleGuest, first.Role)
	assert.Equal(t, model.PlanFree, first.Plan)
	assert.Equal(t, 0, first.GenerationsCount)
	assert.Nil(t, first.Email)
	assert.True(t, first.LastResetDate.Equal(testNow))

	second, err := s.ResolveOrCreateIdentity(ctx, "", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var n int64
	require.NoError(t, conn.Model(&model.Identity{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestResolveNeverMatchesRegisteredByIP(t *testing.T) {
	conn := newTestDB(t)
	s := &Identities{DB: conn, Now: clock(testNow)}

	user := seedIdentity(t, conn, model.Identity{
		Email:     email("a@b.co"),
		Role:      model.RoleUser,
		IPAddress: "5.5.5.5",
	})

	got, err := s.ResolveOrCreateIdentity(context.Background(), "", "5.5.5.5")
	require.NoError(t, err)
	assert.NotEqual(t, user.ID, got.ID)
	assert.Equal(t, model.RoleGuest, got.Role)
}

func TestResolveByCredential(t *testing.T) {
	conn := newTestDB(t)
	s := &Identities{DB: conn, Now: clock(testNow)}

	user := seedIdentity(t, conn, model.Identity{
		Email:     email("a@b.co"),
		Role:      model.RoleUser,
		IPAddress: "5.5.5.5",
	})

	got, err := s.ResolveOrCreateIdentity(context.Background(), user.ID, "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestResolveMissingCredentialFallsBackToGuest(t *testing.T) {
	conn := newTestDB(t)
	s := &Identities{DB: conn, Now: clock(testNow)}

	got, err := s.ResolveOrCreateIdentity(context.Background(), "doesnotexistxxxx", "9.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, model.RoleGuest, got.Role)
	assert.Equal(t, "9.9.9.9", got.IPAddress)
}

func TestFindGuestDoesNotCreate(t *testing.T) {
	conn := newTestDB(t)
	s := &Identities{DB: conn, Now: clock(testNow)}

	_, err := s.FindGuest(context.Background(), "7.7.7.7")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	var n int64
	require.NoError(t, conn.Model(&model.Identity{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestResolveConcurrentFirstRequests(t *testing.T) {
	conn := newTestDB(t)
	s := &Identities{DB: conn, Now: clock(testNow)}

	const workers = 8
	ids := make([]string, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			identity, err := s.ResolveOrCreateIdentity(context.Background(), "", "3.3.3.3")
			if assert.NoError(t, err) {
				ids[i] = identity.ID
			}
		}()
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}

	var n int64
	require.NoError(t, conn.Model(&model.Identity{}).Where("ip_address = ?", "3.3.3.3").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
