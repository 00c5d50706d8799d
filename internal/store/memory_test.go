package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auth-service/internal/clock"
	"auth-service/internal/store"
)

func newTestStore(t *testing.T) (*store.Memory, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return store.NewMemory(clk), clk
}

func TestCreateAndFind(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "alice", 30*24*time.Hour)
	require.NoError(t, err)
	require.NotZero(t, rec.ID)
	require.Len(t, rec.Token, 64) // 32 random bytes, hex encoded
	require.Equal(t, "alice", rec.Principal)
	require.Equal(t, clk.Now(), rec.IssuedAt)
	require.Equal(t, clk.Now().Add(30*24*time.Hour), rec.ExpiresAt)
	require.False(t, rec.Revoked)
	require.Nil(t, rec.RevokedAt)
	require.True(t, rec.Usable(clk.Now()))

	found, err := s.FindByToken(ctx, rec.Token)
	require.NoError(t, err)
	require.Equal(t, rec, found)

	_, err = s.FindByToken(ctx, "unknown")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateAssignsMonotonicIDsAndUniqueTokens(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	var lastID int64
	for i := 0; i < 50; i++ {
		rec, err := s.Create(ctx, "alice", time.Hour)
		require.NoError(t, err)
		require.Greater(t, rec.ID, lastID)
		require.False(t, seen[rec.Token])
		seen[rec.Token] = true
		lastID = rec.ID
	}
}

func TestRotateReplacesRecordAtomically(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	old, err := s.Create(ctx, "alice", time.Hour)
	require.NoError(t, err)

	rotated, err := s.Rotate(ctx, old.ID, "alice", time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, old.Token, rotated.Token)
	require.True(t, rotated.Usable(clk.Now()))

	_, err = s.FindByToken(ctx, old.Token)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Rotate(ctx, old.ID, "alice", time.Hour)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "alice", time.Hour)
	require.NoError(t, err)

	const workers = 16
	start := make(chan struct{})
	results := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, err := s.Rotate(ctx, rec.ID, "alice", time.Hour)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for err := range results {
		switch {
		case err == nil:
			winners++
		default:
			require.ErrorIs(t, err, store.ErrNotFound)
		}
	}
	require.Equal(t, 1, winners)
}

func TestMarkRevokedIsIdempotent(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "alice", time.Hour)
	require.NoError(t, err)

	firstRevocation := clk.Now()
	require.NoError(t, s.MarkRevoked(ctx, rec.ID, firstRevocation))

	got, err := s.FindByToken(ctx, rec.Token)
	require.NoError(t, err)
	require.True(t, got.Revoked)
	require.NotNil(t, got.RevokedAt)
	require.Equal(t, firstRevocation, *got.RevokedAt)
	require.False(t, got.Usable(clk.Now()))

	// Repeating must not move revoked_at.
	clk.Advance(time.Minute)
	require.NoError(t, s.MarkRevoked(ctx, rec.ID, clk.Now()))

	again, err := s.FindByToken(ctx, rec.Token)
	require.NoError(t, err)
	require.Equal(t, firstRevocation, *again.RevokedAt)

	// Unknown ids are a no-op as well.
	require.NoError(t, s.MarkRevoked(ctx, 9999, clk.Now()))
}

func TestRevokeAllForPrincipal(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	var aliceTokens []string
	for i := 0; i < 3; i++ {
		rec, err := s.Create(ctx, "alice", time.Hour)
		require.NoError(t, err)
		aliceTokens = append(aliceTokens, rec.Token)
	}
	bob, err := s.Create(ctx, "bob", time.Hour)
	require.NoError(t, err)

	require.NoError(t, s.RevokeAllForPrincipal(ctx, "alice", clk.Now()))

	for _, tok := range aliceTokens {
		rec, err := s.FindByToken(ctx, tok)
		require.NoError(t, err)
		require.True(t, rec.Revoked)
	}

	rec, err := s.FindByToken(ctx, bob.Token)
	require.NoError(t, err)
	require.False(t, rec.Revoked)
}

func TestDeleteExpired(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	var live, dead []string
	for i := 0; i < 50; i++ {
		rec, err := s.Create(ctx, "alice", time.Hour)
		require.NoError(t, err)
		live = append(live, rec.Token)

		expired, err := s.Create(ctx, "alice", -time.Second)
		require.NoError(t, err)
		dead = append(dead, expired.Token)
	}

	// A revoked but unexpired record must survive cleanup.
	revoked, err := s.Create(ctx, "alice", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.MarkRevoked(ctx, revoked.ID, clk.Now()))

	deleted, err := s.DeleteExpired(ctx, clk.Now())
	require.NoError(t, err)
	require.Equal(t, int64(50), deleted)

	for _, tok := range dead {
		_, err := s.FindByToken(ctx, tok)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	for _, tok := range live {
		_, err := s.FindByToken(ctx, tok)
		require.NoError(t, err)
	}

	kept, err := s.FindByToken(ctx, revoked.Token)
	require.NoError(t, err)
	require.True(t, kept.Revoked)
}

func TestDeleteExpiredBoundary(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, "alice", time.Hour)
	require.NoError(t, err)

	// expires_at == now is not yet expired.
	deleted, err := s.DeleteExpired(ctx, rec.ExpiresAt)
	require.NoError(t, err)
	require.Zero(t, deleted)

	clk.Advance(time.Hour + time.Second)
	deleted, err = s.DeleteExpired(ctx, clk.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
