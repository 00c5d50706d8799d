package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auth-service/internal/clock"
	"auth-service/internal/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestSigner(t *testing.T, ttl time.Duration) (*token.Signer, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	signer, err := token.NewSigner(testSecret, ttl, clk)
	require.NoError(t, err)
	return signer, clk
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	clk := clock.NewMock(time.Now())
	_, err := token.NewSigner([]byte("too-short"), time.Hour, clk)
	require.Error(t, err)
}

func TestSignAndVerify(t *testing.T) {
	signer, clk := newTestSigner(t, time.Hour)

	signed, err := signer.Sign("alice")
	require.NoError(t, err)

	claims, err := signer.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
	require.Equal(t, token.TypeAccess, claims.Type)
	require.Equal(t, clk.Now().Unix(), claims.IssuedAt.Unix())
	require.Equal(t, clk.Now().Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	signer, _ := newTestSigner(t, time.Hour)

	signed, err := signer.Sign("alice")
	require.NoError(t, err)

	// Flipping any byte of the compact form must break verification.
	for _, idx := range []int{0, len(signed) / 2, len(signed) - 1} {
		raw := []byte(signed)
		if raw[idx] == 'A' {
			raw[idx] = 'B'
		} else {
			raw[idx] = 'A'
		}
		_, err := signer.Verify(string(raw))
		require.ErrorIs(t, err, token.ErrInvalidToken, "tampered at index %d", idx)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, clk := newTestSigner(t, time.Hour)

	other, err := token.NewSigner([]byte("ffffffffffffffffffffffffffffffff"), time.Hour, clk)
	require.NoError(t, err)

	signed, err := other.Sign("alice")
	require.NoError(t, err)

	_, err = signer.Verify(signed)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	signer, _ := newTestSigner(t, time.Hour)

	for _, tok := range []string{"", "garbage", "a.b", strings.Repeat("x", 300)} {
		_, err := signer.Verify(tok)
		require.ErrorIs(t, err, token.ErrInvalidToken)
	}
}

func TestVerifyDoesNotTreatExpiryAsError(t *testing.T) {
	signer, clk := newTestSigner(t, time.Second)

	signed, err := signer.Sign("alice")
	require.NoError(t, err)

	clk.Advance(2 * time.Second)

	claims, err := signer.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
	require.True(t, signer.IsExpired(signed))
}

func TestIsExpired(t *testing.T) {
	signer, clk := newTestSigner(t, time.Hour)

	signed, err := signer.Sign("alice")
	require.NoError(t, err)
	require.False(t, signer.IsExpired(signed))

	clk.Advance(time.Hour - time.Second)
	require.False(t, signer.IsExpired(signed))

	clk.Advance(time.Second)
	require.True(t, signer.IsExpired(signed))
}

func TestIsExpiredFailsClosed(t *testing.T) {
	signer, _ := newTestSigner(t, time.Hour)
	require.True(t, signer.IsExpired("not-a-token"))
}
