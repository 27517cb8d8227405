package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/exmoboty/starter/internal/crypto"
	"github.com/exmoboty/starter/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSessionManager_CreateStoresHashedID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, s, err := f.sessions.Create(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, id, 64)
	assert.Equal(t, crypto.HashToken(id), s.ID)
	assert.Equal(t, f.clock.Now().Add(time.Hour), s.ExpiresAt)

	_, err = f.store.Get(ctx, id)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound, "raw id must not be a store key")
}

func TestSessionManager_GetExpiredDeletesLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, _, err := f.sessions.Create(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.sessions.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, 0, f.store.Len())
}

func TestSessionManager_TouchExtendsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, _, err := f.sessions.Create(ctx, "user-1")
	require.NoError(t, err)

	f.clock.Advance(50 * time.Minute)
	s, err := f.sessions.Touch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(time.Hour), s.ExpiresAt)

	// Past the original expiry but inside the rolled one.
	f.clock.Advance(30 * time.Minute)
	_, err = f.sessions.Get(ctx, id)
	assert.NoError(t, err)
}

func TestSessionManager_UnknownID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.sessions.Get(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.sessions.Touch(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.NoError(t, f.sessions.Destroy(ctx, "nope"))
}

func TestSessionManager_DestroyAllForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.sessions.Create(ctx, "user-1")
	require.NoError(t, err)
	_, _, err = f.sessions.Create(ctx, "user-1")
	require.NoError(t, err)
	other, _, err := f.sessions.Create(ctx, "user-2")
	require.NoError(t, err)

	require.NoError(t, f.sessions.DestroyAllForUser(ctx, "user-1"))

	_, err = f.sessions.Get(ctx, a)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.sessions.Get(ctx, other)
	assert.NoError(t, err)
}

func TestSessionManager_Sweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.sessions.Create(ctx, "user-1")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)
	_, _, err = f.sessions.Create(ctx, "user-2")
	require.NoError(t, err)
	f.clock.Advance(30 * time.Minute)

	n, err := f.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, int64(1), f.recorder.swept)
}

func TestSessionManager_ZeroMaxAgeFallsBack(t *testing.T) {
	m := NewSessionManager(repository.NewMemorySessionRepository(), 0)
	assert.Equal(t, BrowserSessionLifetime, m.Lifetime())
}

func TestSessionManager_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.sessions.Run(ctx, time.Millisecond)
		close(done)
	}()

	_, _, err := f.sessions.Create(context.Background(), "user-1")
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	require.Eventually(t, func() bool { return f.store.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSessionManager_RunNonPositiveIntervalDoesNotPanic(t *testing.T) {
	f := newFixture(t)

	for _, interval := range []time.Duration{0, -time.Second} {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			f.sessions.Run(ctx, interval)
		}()

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("Run(%v) did not return after cancel", interval)
		}
	}
}
