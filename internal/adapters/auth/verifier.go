// Package auth implements the session verifier: bearer JWTs first,
// with a session-table fallback for cookie credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/dkeye/eventchat/internal/adapters/store"
	"github.com/dkeye/eventchat/internal/domain"
)

type Verifier struct {
	db         *gorm.DB
	secret     []byte
	cookieName string
}

func NewVerifier(db *gorm.DB, secret, cookieName string) *Verifier {
	return &Verifier{db: db, secret: []byte(secret), cookieName: cookieName}
}

// Verify resolves the discovered credential to an identity. A nil,
// nil return means the credential did not resolve to anyone; a non-nil
// error means the verifier itself failed (and the caller should treat
// the connection as rejectable for infrastructure reasons).
func (v *Verifier) Verify(ctx context.Context, token, cookie string) (*domain.Identity, error) {
	if identity := v.fromJWT(token); identity != nil {
		return identity, nil
	}
	identity, err := v.fromSession(ctx, token)
	if err != nil || identity != nil {
		return identity, err
	}
	// The bearer token resolved to nothing; fall back to the session
	// cookie when the handshake carried one alongside it.
	if sid := sessionFromCookieHeader(cookie, v.cookieName); sid != "" && sid != token {
		return v.fromSession(ctx, sid)
	}
	return nil, nil
}

type chatClaims struct {
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

func (v *Verifier) fromJWT(token string) *domain.Identity {
	var claims chatClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return nil
	}
	identity, err := domain.NewIdentity(domain.UserID(claims.Subject), claims.Name, claims.Image)
	if err != nil {
		return nil
	}
	return identity
}

func (v *Verifier) fromSession(ctx context.Context, sid string) (*domain.Identity, error) {
	if sid == "" {
		return nil, nil
	}
	var sess store.SessionRow
	err := v.db.WithContext(ctx).Where("token = ?", sid).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if !sess.ExpiresAt.IsZero() && sess.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	var user store.UserRow
	err = v.db.WithContext(ctx).Where("id = ?", sess.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	identity, err := domain.NewIdentity(domain.UserID(user.ID), user.Name, user.AvatarURL)
	if err != nil {
		// A malformed user row is a credential that does not resolve,
		// not a verifier failure.
		return nil, nil
	}
	return identity, nil
}

func sessionFromCookieHeader(header, name string) string {
	if header == "" {
		return ""
	}
	req := http.Request{Header: http.Header{"Cookie": {header}}}
	c, err := req.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
