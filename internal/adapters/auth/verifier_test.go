package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/eventchat/internal/adapters/store"
	"github.com/dkeye/eventchat/internal/domain"
)

const testSecret = "verifier-test-secret"

func testVerifier(t *testing.T) *Verifier {
	t.Helper()
	db, err := store.Open("file:authtest?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Exec("DELETE FROM sessions").Error)
	require.NoError(t, db.Exec("DELETE FROM users").Error)
	return NewVerifier(db, testSecret, "session")
}

func signToken(t *testing.T, secret string, claims chatClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestVerifyJWT(t *testing.T) {
	v := testVerifier(t)

	tok := signToken(t, testSecret, chatClaims{
		Name:  "Alice",
		Image: "https://cdn/a.png",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := v.Verify(context.Background(), tok, "")
	require.NoError(t, err)
	require.NotNil(t, identity)
	require.Equal(t, domain.UserID("u1"), identity.UserID)
	require.Equal(t, "Alice", identity.DisplayName)
	require.Equal(t, "https://cdn/a.png", identity.AvatarURL)
}

func TestVerifyJWTRejections(t *testing.T) {
	v := testVerifier(t)
	ctx := context.Background()

	t.Run("wrong secret", func(t *testing.T) {
		tok := signToken(t, "other-secret", chatClaims{
			Name:             "Mallory",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u9"},
		})
		identity, err := v.Verify(ctx, tok, "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})

	t.Run("expired", func(t *testing.T) {
		tok := signToken(t, testSecret, chatClaims{
			Name: "Alice",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "u1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		})
		identity, err := v.Verify(ctx, tok, "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})

	t.Run("missing subject", func(t *testing.T) {
		tok := signToken(t, testSecret, chatClaims{Name: "Nobody"})
		identity, err := v.Verify(ctx, tok, "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})

	t.Run("missing name", func(t *testing.T) {
		tok := signToken(t, testSecret, chatClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		})
		identity, err := v.Verify(ctx, tok, "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})

	t.Run("oversized name", func(t *testing.T) {
		tok := signToken(t, testSecret, chatClaims{
			Name:             strings.Repeat("x", domain.MaxDisplayNameLen+1),
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		})
		identity, err := v.Verify(ctx, tok, "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})

	t.Run("garbage token", func(t *testing.T) {
		identity, err := v.Verify(ctx, "not-a-jwt", "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})
}

func TestVerifySessionFallback(t *testing.T) {
	v := testVerifier(t)
	ctx := context.Background()

	require.NoError(t, v.db.Create(&store.UserRow{
		ID: "u2", Name: "Bob", AvatarURL: "https://cdn/b.png",
	}).Error)
	require.NoError(t, v.db.Create(&store.SessionRow{
		Token: "sess-bob", UserID: "u2", ExpiresAt: time.Now().Add(time.Hour),
	}).Error)
	require.NoError(t, v.db.Create(&store.SessionRow{
		Token: "sess-stale", UserID: "u2", ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)

	t.Run("token is a session id", func(t *testing.T) {
		identity, err := v.Verify(ctx, "sess-bob", "")
		require.NoError(t, err)
		require.NotNil(t, identity)
		require.Equal(t, domain.UserID("u2"), identity.UserID)
		require.Equal(t, "Bob", identity.DisplayName)
	})

	t.Run("expired session", func(t *testing.T) {
		identity, err := v.Verify(ctx, "sess-stale", "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})

	t.Run("cookie header fallback", func(t *testing.T) {
		identity, err := v.Verify(ctx, "useless-bearer", "other=1; session=sess-bob")
		require.NoError(t, err)
		require.NotNil(t, identity)
		require.Equal(t, domain.UserID("u2"), identity.UserID)
	})

	t.Run("unknown session", func(t *testing.T) {
		identity, err := v.Verify(ctx, "sess-nope", "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})

	t.Run("session without user row", func(t *testing.T) {
		require.NoError(t, v.db.Create(&store.SessionRow{
			Token: "sess-orphan", UserID: "ghost", ExpiresAt: time.Now().Add(time.Hour),
		}).Error)
		identity, err := v.Verify(ctx, "sess-orphan", "")
		require.NoError(t, err)
		require.Nil(t, identity)
	})
}
