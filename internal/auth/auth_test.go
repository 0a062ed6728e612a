package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"docchat/internal/util"
)

const secret = "test-secret-with-enough-bytes-0123456789"

func TestVerify(t *testing.T) {
	v, err := NewVerifier(secret, SupabaseAudience)
	require.NoError(t, err)

	good, err := SignToken(secret, "user-1", SupabaseAudience, time.Minute)
	require.NoError(t, err)
	sub, err := v.Verify(good)
	require.NoError(t, err)
	require.Equal(t, "user-1", sub)

	expired, _ := SignToken(secret, "user-1", SupabaseAudience, -time.Minute)
	wrongKey, _ := SignToken("another-secret", "user-1", SupabaseAudience, time.Minute)
	wrongAud, _ := SignToken(secret, "user-1", "anon", time.Minute)
	noSub, _ := SignToken(secret, "", SupabaseAudience, time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "aud": SupabaseAudience, "exp": time.Now().Add(time.Minute).Unix()}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.token",
		"expired":   expired,
		"wrong key": wrongKey,
		"wrong aud": wrongAud,
		"no sub":    noSub,
		"alg none":  none,
	} {
		_, err := v.Verify(tok)
		require.ErrorIs(t, err, util.ErrAuth, name)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("", SupabaseAudience)
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	v, _ := NewVerifier(secret, SupabaseAudience)
	var seen string
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}), func(w http.ResponseWriter, err error) {
		if errors.Is(err, util.ErrAuth) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	tok, _ := SignToken(secret, "user-7", SupabaseAudience, time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "user-7", seen)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: accessCookie, Value: tok})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
