package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestJWT_RoundTrip(t *testing.T) {
	token, issued, err := GenerateJWT(42, "FREELANCER", "secret", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := ParseJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "FREELANCER", claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
}

func TestJWT_Rejections(t *testing.T) {
	token, _, err := GenerateJWT(1, "CLIENT", "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(token, "other-secret")
	assert.Error(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ParseJWT(signed, "secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseJWT(unsigned, "secret")
	assert.Error(t, err)

	_, _, err = GenerateJWT(1, "CLIENT", "", time.Hour)
	assert.Error(t, err)
}

func TestExtractToken(t *testing.T) {
	r, _ := http.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, ExtractToken(r, "mochimo_token"))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", ExtractToken(r, "mochimo_token"))

	r.AddCookie(&http.Cookie{Name: "mochimo_token", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", ExtractToken(r, "mochimo_token"))

	r2, _ := http.NewRequest(http.MethodGet, "/", nil)
	r2.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, ExtractToken(r2, ""))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("wrong", hash))

	_, err = HashPassword(string(make([]byte, 73)))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestTokenBlacklist(t *testing.T) {
	mr, rdb := newRedis(t)
	bl := NewTokenBlacklist(rdb)
	ctx := context.Background()

	revoked, err := bl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = bl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = bl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, "jti-2", 0))
	assert.False(t, mr.Exists(blacklistKey("jti-2")))
}

func TestDeduper(t *testing.T) {
	_, rdb := newRedis(t)
	d := NewDeduper(rdb, time.Hour, nil)
	ctx := context.Background()

	assert.True(t, d.AcquireOnce(ctx, "notify", "evt-1"))
	assert.False(t, d.AcquireOnce(ctx, "notify", "evt-1"))
	assert.True(t, d.AcquireOnce(ctx, "other", "evt-1"))

	d.Release(ctx, "notify", "evt-1")
	assert.True(t, d.AcquireOnce(ctx, "notify", "evt-1"))
}

func TestDeduper_ClaimExpires(t *testing.T) {
	mr, rdb := newRedis(t)
	d := NewDeduper(rdb, time.Minute, nil)
	ctx := context.Background()

	require.True(t, d.AcquireOnce(ctx, "notify", "evt-9"))
	assert.True(t, mr.Exists(dedupKey("notify", "evt-9")))
	mr.FastForward(2 * time.Minute)
	assert.True(t, d.AcquireOnce(ctx, "notify", "evt-9"))
}

func TestDeduper_RedisDownAllowsProcessing(t *testing.T) {
	mr, rdb := newRedis(t)
	d := NewDeduper(rdb, time.Hour, nil)
	mr.Close()

	assert.True(t, d.AcquireOnce(context.Background(), "notify", "evt-1"))
}

func TestRetryCounter(t *testing.T) {
	mr, rdb := newRedis(t)
	rc := NewRetryCounter(rdb, time.Minute)
	ctx := context.Background()

	n, err := rc.IncrementAndGet(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = rc.IncrementAndGet(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.TTL(attemptsKey("retry:q:1")) > 0)

	got, err := rc.Get(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	require.NoError(t, rc.Reset(ctx, "retry:q:1"))
	got, err = rc.Get(ctx, "retry:q:1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", &json.SyntaxError{}), false, "json_decode_error"},
		{"no rows", fmt.Errorf("load: %w", pgx.ErrNoRows), false, "not_found"},
		{"unique", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, false, "duplicate_key"},
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, true, "tx_conflict"},
		{"check", &pgconn.PgError{Code: pgerrcode.CheckViolation}, false, "constraint_violation"},
		{"amqp recoverable", &amqp091.Error{Code: 320, Recover: true}, true, "amqp_error"},
		{"amqp fatal", &amqp091.Error{Code: 403}, false, "amqp_error"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"unknown", errors.New("boom"), false, "unknown_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retryable, kind := IsRetryableError(tc.err)
			assert.Equal(t, tc.retryable, retryable)
			assert.Equal(t, tc.kind, kind)
		})
	}

	retryable, _ := IsRetryableError(context.DeadlineExceeded)
	assert.True(t, retryable)
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, ShouldRetry(1, 3, true))
	assert.True(t, ShouldRetry(3, 3, true))
	assert.False(t, ShouldRetry(4, 3, true))
	assert.False(t, ShouldRetry(1, 3, false))
}
