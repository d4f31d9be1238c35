package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTokenService(opts ...TokenOption) (*TokenService, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]TokenOption{WithClock(clock.Now)}, opts...)
	return NewTokenService("test-secret", opts...), clock
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc, _ := newTestTokenService()

	pair, err := svc.Issue(42)
	require.NoError(t, err)
	require.NotEmpty(t, pair.Access)
	require.NotEmpty(t, pair.Refresh)
	assert.NotEqual(t, pair.Access, pair.Refresh)

	userID, err := svc.VerifyAccess(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)

	claims, err := svc.ParseRefresh(pair.Refresh)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.NotEmpty(t, claims.TokenID)
	assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), claims.ExpiresAt.UTC())
}

func TestTokenService_TokenIDsAreUnique(t *testing.T) {
	svc, _ := newTestTokenService()

	first, err := svc.Issue(1)
	require.NoError(t, err)
	second, err := svc.Issue(1)
	require.NoError(t, err)

	a, err := svc.ParseRefresh(first.Refresh)
	require.NoError(t, err)
	b, err := svc.ParseRefresh(second.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, a.TokenID, b.TokenID)
}

func TestTokenService_RejectsWrongTokenType(t *testing.T) {
	svc, _ := newTestTokenService()
	pair, err := svc.Issue(1)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.ParseRefresh(pair.Access)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenService_Expiry(t *testing.T) {
	svc, clock := newTestTokenService(WithTokenTTLs(time.Minute, time.Hour))
	pair, err := svc.Issue(1)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = svc.ParseRefresh(pair.Refresh)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, err = svc.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_RejectsForeignTokens(t *testing.T) {
	svc, clock := newTestTokenService()
	other := NewTokenService("another-secret", WithClock(clock.Now))
	pair, err := other.Issue(1)
	require.NoError(t, err)

	_, err = svc.VerifyAccess(pair.Access)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = svc.VerifyAccess("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenMalformed)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, TokenClaims{
		TokenType: TokenTypeAccess,
		UserID:    1,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.VerifyAccess(raw)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenService_RevokeAndRefresh(t *testing.T) {
	revoked := newMemoryRevokedSet()
	svc, _ := newTestTokenService(WithRevokedSet(revoked))
	ctx := context.Background()

	pair, err := svc.Issue(5)
	require.NoError(t, err)

	access, err := svc.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	userID, err := svc.VerifyAccess(access)
	require.NoError(t, err)
	assert.Equal(t, int64(5), userID)

	require.NoError(t, svc.Revoke(ctx, pair.Refresh))
	require.NoError(t, svc.Revoke(ctx, pair.Refresh))
	assert.Equal(t, 1, revoked.size())

	_, err = svc.Refresh(ctx, pair.Refresh)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	assert.ErrorIs(t, svc.Revoke(ctx, "garbage"), ErrTokenMalformed)
}

func TestTokenService_RevokeWithoutRevokedSet(t *testing.T) {
	svc, _ := newTestTokenService()
	pair, err := svc.Issue(5)
	require.NoError(t, err)

	assert.False(t, svc.RevocationEnabled())
	assert.ErrorIs(t, svc.Revoke(context.Background(), pair.Refresh), ErrRevocationUnsupported)

	// refresh still works; there is nothing to consult
	_, err = svc.Refresh(context.Background(), pair.Refresh)
	assert.NoError(t, err)
}

func TestTokenService_RefreshPropagatesStoreErrors(t *testing.T) {
	revoked := newMemoryRevokedSet()
	svc, _ := newTestTokenService(WithRevokedSet(revoked))
	pair, err := svc.Issue(5)
	require.NoError(t, err)

	revoked.failErr = errors.New("redis down")
	_, err = svc.Refresh(context.Background(), pair.Refresh)
	assert.ErrorIs(t, err, revoked.failErr)
	assert.Equal(t, KindInternal, KindOf(err))
}
