package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type requesterKey struct{}

var (
	errMissingToken = errors.New("missing bearer token")
	errBadSubject   = errors.New("token has no usable user id")
	errExpiredToken = errors.New("token expired")
)

// authenticator verifies the HS256 tokens issued by the identity service.
type authenticator struct {
	secret []byte
	now    func() time.Time
}

func newAuthenticator(secret string) *authenticator {
	return &authenticator{secret: []byte(secret), now: time.Now}
}

// requesterFromToken returns the user id carried in the `sub` claim, falling
// back to the legacy `user_id` claim.
func (a *authenticator) requesterFromToken(tokenStr string) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, jwt.ErrTokenInvalidClaims
	}

	// Older tokens carry a unix "expires" claim instead of "exp".
	if exp, ok := claims["expires"].(float64); ok && a.now().Unix() > int64(exp) {
		return uuid.Nil, errExpiredToken
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		sub, _ = claims["user_id"].(string)
	}
	id, err := uuid.Parse(sub)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errBadSubject
	}
	return id, nil
}

// requesterFromRequest reads the Authorization header, or the token query
// parameter for websocket upgrades where browsers cannot set headers.
func (a *authenticator) requesterFromRequest(r *http.Request) (uuid.UUID, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return a.requesterFromToken(strings.TrimPrefix(h, "Bearer "))
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return a.requesterFromToken(q)
	}
	return uuid.Nil, errMissingToken
}

func (a *authenticator) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.requesterFromRequest(r)
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Rejected request")
			if errors.Is(err, errMissingToken) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("requester_id", id.String())
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requesterKey{}, id)))
	})
}

func requesterID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(requesterKey{}).(uuid.UUID)
	return id, ok
}

// requesterKeyFunc keys the rate limiter by the authenticated user.
func requesterKeyFunc(r *http.Request) (string, error) {
	id, ok := requesterID(r.Context())
	if !ok {
		return "", errMissingToken
	}
	return id.String(), nil
}
