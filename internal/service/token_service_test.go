package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribex-api/internal/model"
	"scribex-api/internal/revocation"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestTokenService() *TokenService {
	return NewTokenService(testSecret, "scribex-test", 30*time.Minute, 7*24*time.Hour, 15*time.Minute, revocation.NewMemoryStore())
}

func TestTokenServiceVerifiesByClass(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tokens := newTestTokenService()

	access, _, err := tokens.IssueAccess("acct-1")
	require.NoError(t, err)

	accountID, err := tokens.Verify(ctx, access, model.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)

	_, err = tokens.Verify(ctx, access, model.TokenRefresh)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	refresh, _, err := tokens.IssueRefresh("acct-1")
	require.NoError(t, err)

	_, err = tokens.Verify(ctx, refresh, model.TokenAccess)
	require.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestTokenServiceIssuePair(t *testing.T) {
	t.Parallel()

	tokens := newTestTokenService()
	pair, err := tokens.IssuePair("acct-1")
	require.NoError(t, err)

	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64(1800), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
}

func TestTokenServiceRejectsExpiredTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tokens := newTestTokenService()
	issuedAt := time.Now().Add(-time.Hour)
	tokens.now = func() time.Time { return issuedAt }

	access, _, err := tokens.IssueAccess("acct-1")
	require.NoError(t, err)

	tokens.now = time.Now
	_, err = tokens.Verify(ctx, access, model.TokenAccess)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	require.NoError(t, tokens.Revoke(ctx, access), "revoking an expired token is a no-op")
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tokens := newTestTokenService()

	other := NewTokenService("ffffffffffffffffffffffffffffffff", "scribex-test", time.Minute, time.Hour, time.Minute, revocation.NewMemoryStore())
	foreign, _, err := other.IssueAccess("acct-1")
	require.NoError(t, err)

	_, err = tokens.Verify(ctx, foreign, model.TokenAccess)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "acct-1", "typ": "access", "jti": "x", "iss": "scribex-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Verify(ctx, unsigned, model.TokenAccess)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = tokens.Verify(ctx, "not-a-jwt", model.TokenAccess)
	require.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestTokenServiceRevoke(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tokens := newTestTokenService()
	revocations := 0
	tokens.OnRevoke(func() { revocations++ })

	access, _, err := tokens.IssueAccess("acct-1")
	require.NoError(t, err)
	other, _, err := tokens.IssueAccess("acct-1")
	require.NoError(t, err)

	require.NoError(t, tokens.Revoke(ctx, access))
	assert.Equal(t, 1, revocations)

	for _, class := range []model.TokenClass{model.TokenAccess, model.TokenRefresh, model.TokenReset} {
		_, err := tokens.Verify(ctx, access, class)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	}

	_, err = tokens.Verify(ctx, other, model.TokenAccess)
	require.NoError(t, err, "revocation is per token")

	require.ErrorIs(t, tokens.Revoke(ctx, "garbage"), model.ErrInvalidToken)
}

func TestTokenServiceConsumeIsSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tokens := newTestTokenService()
	consumed := 0
	tokens.OnRevoke(func() { consumed++ })

	refresh, _, err := tokens.IssueRefresh("acct-1")
	require.NoError(t, err)

	_, err = tokens.Consume(ctx, refresh, model.TokenAccess)
	require.ErrorIs(t, err, model.ErrInvalidToken, "class is checked before the token is spent")

	accountID, err := tokens.Consume(ctx, refresh, model.TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)
	assert.Equal(t, 1, consumed)

	_, err = tokens.Consume(ctx, refresh, model.TokenRefresh)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = tokens.Verify(ctx, refresh, model.TokenRefresh)
	require.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestTokenServiceConsumeConcurrently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tokens := newTestTokenService()

	refresh, _, err := tokens.IssueRefresh("acct-1")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tokens.Consume(ctx, refresh, model.TokenRefresh); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}
