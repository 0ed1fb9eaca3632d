package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// AUTHENTICATION TEST SUITE
// ============================================================================

func TestAuthenticationSuite(t *testing.T) {
	t.Run("Token parsing", testTokenParsing)
	t.Run("Request sources", testRequestSources)
	t.Run("Middleware responses", testAuthMiddleware)
}

func testTokenParsing(t *testing.T) {
	a := newAuthenticator(testSecret)
	id := uuid.New()
	future := time.Now().Add(time.Hour).Unix()
	past := time.Now().Add(-time.Hour).Unix()

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr bool
	}{
		{
			name:  "Subject claim",
			token: func(t *testing.T) string { return signToken(t, jwt.MapClaims{"sub": id.String(), "exp": future}) },
		},
		{
			name:  "Legacy user_id claim",
			token: func(t *testing.T) string { return signToken(t, jwt.MapClaims{"user_id": id.String(), "expires": future}) },
		},
		{
			name:    "Expired exp",
			token:   func(t *testing.T) string { return signToken(t, jwt.MapClaims{"sub": id.String(), "exp": past}) },
			wantErr: true,
		},
		{
			name:    "Expired legacy expires",
			token:   func(t *testing.T) string { return signToken(t, jwt.MapClaims{"sub": id.String(), "expires": past}) },
			wantErr: true,
		},
		{
			name:    "Numeric legacy id",
			token:   func(t *testing.T) string { return signToken(t, jwt.MapClaims{"user_id": 42, "exp": future}) },
			wantErr: true,
		},
		{
			name:    "Subject that is not a uuid",
			token:   func(t *testing.T) string { return signToken(t, jwt.MapClaims{"sub": "mia", "exp": future}) },
			wantErr: true,
		},
		{
			name: "Wrong secret",
			token: func(t *testing.T) string {
				tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": id.String()}).SignedString([]byte("other"))
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},
		{
			name: "Unsigned token",
			token: func(t *testing.T) string {
				tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": id.String()}).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return tok
			},
			wantErr: true,
		},
		{
			name:    "Garbage",
			token:   func(*testing.T) string { return "invalid_token" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.requesterFromToken(tt.token(t))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, uuid.Nil, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, id, got)
		})
	}
}

func testRequestSources(t *testing.T) {
	a := newAuthenticator(testSecret)
	id := uuid.New()
	token := tokenFor(t, id)

	t.Run("Authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/matches", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		got, err := a.requesterFromRequest(req)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("Token query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ws/matches?token="+token, nil)
		got, err := a.requesterFromRequest(req)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("No credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/matches", nil)
		_, err := a.requesterFromRequest(req)
		assert.ErrorIs(t, err, errMissingToken)
	})
}

func testAuthMiddleware(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"Missing header", "", http.StatusUnauthorized, "unauthorized"},
		{"Not a bearer header", "Basic abc", http.StatusUnauthorized, "unauthorized"},
		{"Invalid token", "Bearer invalid_token", http.StatusUnauthorized, "invalid_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/matches", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			app.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.wantError, body["error"])
		})
	}

	t.Run("Health needs no token", func(t *testing.T) {
		rec := app.get(t, "/health", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})
}
