package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret, subject string, expiry time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(expiry).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testSecret)

	sub, err := v.Verify(signToken(t, testSecret, "user-42", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	v := NewVerifier(testSecret)
	_, err := v.Verify(signToken(t, "wrong-secret", "user-42", time.Hour))
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret)
	_, err := v.Verify(signToken(t, testSecret, "user-42", -time.Hour))
	assert.Error(t, err)
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	v := NewVerifier(testSecret)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.Error(t, err)
}

func middlewareProbe(v *Verifier) (http.Handler, *string) {
	var gotUser string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &gotUser
}

func TestMiddlewareSetsUserID(t *testing.T) {
	h, gotUser := middlewareProbe(NewVerifier(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/api/lists", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-42", time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", *gotUser)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	h, _ := middlewareProbe(NewVerifier(testSecret))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lists", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsInvalidToken(t *testing.T) {
	h, _ := middlewareProbe(NewVerifier(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/api/lists", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareMissingSecretIsServerError(t *testing.T) {
	h, _ := middlewareProbe(NewVerifier(""))

	req := httptest.NewRequest(http.MethodGet, "/api/lists", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "user-42", time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// Misconfiguration, not an authorization failure.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
