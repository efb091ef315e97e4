package service

import (
	"bitwise74/docstring-api/internal/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeFailures(t *testing.T) {
	conn := newTestDB(t)
	guest := seedIdentity(t, conn, model.Identity{})

	for _, age := range []time.Duration{time.Hour, 40 * 24 * time.Hour, 90 * 24 * time.Hour} {
		require.NoError(t, conn.Create(&model.GenerationFailure{
			IdentityID: guest.ID,
			IPAddress:  guest.IPAddress,
			Language:   "python",
			Timestamp:  testNow.Add(-age).UTC(),
		}).Error)
	}

	n, err := PurgeFailures(context.Background(), conn, testNow.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.EqualValues(t, 1, countRows(t, conn, &model.GenerationFailure{}))
}

func TestPurgeGuests(t *testing.T) {
	conn := newTestDB(t)
	old := testNow.Add(-100 * 24 * time.Hour).UTC()

	stale := seedIdentity(t, conn, model.Identity{IPAddress: "1.1.1.1", LastResetDate: old})
	fresh := seedIdentity(t, conn, model.Identity{IPAddress: "2.2.2.2"})
	user := seedIdentity(t, conn, model.Identity{Email: email("u@x.io"), Role: model.RoleUser, LastResetDate: old})

	seedGeneration(t, conn, stale.ID, old)
	seedGeneration(t, conn, fresh.ID, testNow)
	seedGeneration(t, conn, user.ID, old)
	require.NoError(t, conn.Create(&model.GenerationFailure{
		IdentityID: stale.ID,
		IPAddress:  stale.IPAddress,
		Language:   "python",
		Timestamp:  old,
	}).Error)

	n, err := PurgeGuests(context.Background(), conn, testNow.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var ids []string
	require.NoError(t, conn.Model(&model.Identity{}).Order("id").Pluck("id", &ids).Error)
	assert.ElementsMatch(t, []string{fresh.ID, user.ID}, ids)

	assert.EqualValues(t, 2, countRows(t, conn, &model.Generation{}))
	assert.Zero(t, countRows(t, conn, &model.GenerationFailure{}))
}

func TestPurgeGuestsNothingToDo(t *testing.T) {
	conn := newTestDB(t)
	seedIdentity(t, conn, model.Identity{})

	n, err := PurgeGuests(context.Background(), conn, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanupLoopsStopWithContext(t *testing.T) {
	conn := newTestDB(t)
	guest := seedIdentity(t, conn, model.Identity{})
	require.NoError(t, conn.Create(&model.GenerationFailure{
		IdentityID: guest.ID,
		IPAddress:  guest.IPAddress,
		Language:   "python",
		Timestamp:  time.Now().Add(-time.Hour).UTC(),
	}).Error)

	ctx, cancel := context.WithCancel(context.Background())
	FailureCleanup(ctx, 10*time.Millisecond, time.Minute, conn)

	assert.Eventually(t, func() bool {
		var n int64
		err := conn.Model(&model.GenerationFailure{}).Count(&n).Error
		return err == nil && n == 0
	}, time.Second, 10*time.Millisecond)

	cancel()
}
