package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/carrymatch/internal/middleware"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

// actorEcho writes the authenticated actor id as the response body.
var actorEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(id.String()))
})

func TestAuth_ValidBearerToken_SetsActor(t *testing.T) {
	actor := uuid.New()
	h := middleware.NewAuth(testSecret)(actorEcho)

	req := httptest.NewRequest(http.MethodGet, "/api/matches", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, validClaims(actor.String())))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, actor.String(), rec.Body.String())
}

func TestAuth_QueryToken_SetsActor(t *testing.T) {
	actor := uuid.New()
	h := middleware.NewAuth(testSecret)(actorEcho)

	tok := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims(actor.String()))
	req := httptest.NewRequest(http.MethodGet, "/api/notifications/stream?access_token="+tok, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, actor.String(), rec.Body.String())
}

func TestAuth_Rejects(t *testing.T) {
	actor := uuid.New().String()
	expired := validClaims(actor)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
		{name: "wrong secret", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims(actor))},
		{name: "wrong algorithm", header: "Bearer " + signToken(t, jwt.SigningMethodHS512, testSecret, validClaims(actor))},
		{name: "expired", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, expired)},
		{name: "no expiry", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{Subject: actor})},
		{name: "subject not a uuid", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("alice"))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := middleware.NewAuth(testSecret)(actorEcho)
			req := httptest.NewRequest(http.MethodGet, "/api/matches", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}
