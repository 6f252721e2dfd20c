// Package auth verifies bearer tokens issued by the identity provider and
// exposes the authenticated session to handlers. Token issuance and
// sign-out live upstream; this service only checks signatures and claims.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the authenticated session identity. Role, name and the rest of
// the profile live in the users table, not in the token.
type User struct {
	ID    string
	Email string
}

type contextKey string

const userKey contextKey = "auth-user"

var ErrNoToken = errors.New("missing bearer token")

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Middleware rejects requests without a valid bearer token and stores the
// session user in the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := v.fromRequest(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func (v *Verifier) fromRequest(r *http.Request) (User, error) {
	raw := bearerToken(r)
	if raw == "" {
		return User{}, ErrNoToken
	}
	return v.Verify(raw)
}

func (v *Verifier) Verify(raw string) (User, error) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return User{}, err
	}
	if !tok.Valid || c.Subject == "" {
		return User{}, errors.New("invalid token")
	}
	return User{ID: c.Subject, Email: c.Email}, nil
}

// Token mints a session token. Production issuance belongs to the identity
// provider; this exists for local runs and tests.
func (v *Verifier) Token(userID, email string, ttl time.Duration) (string, error) {
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// websocket clients can't set headers from the browser
	return r.URL.Query().Get("token")
}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext returns the session user, if any.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok
}
