package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"docchat/internal/util"
)

// SupabaseAudience is the aud claim carried by signed-in user tokens.
const SupabaseAudience = "authenticated"

const accessCookie = "sb-access-token"

// Verifier validates HS256 access tokens issued by the auth provider.
type Verifier struct {
	secret   []byte
	audience string
}

func NewVerifier(secret, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret not configured (DOCCHAT_JWT_SECRET)")
	}
	return &Verifier{secret: []byte(secret), audience: audience}, nil
}

// Verify returns the subject of a valid token.
func (v *Verifier) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", util.ErrAuth)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) { return v.secret, nil }, opts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: invalid token: %v", util.ErrAuth, err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: token has no subject", util.ErrAuth)
	}
	return sub, nil
}

// Middleware rejects requests without a valid token and stores the user id in
// the request context. onErr writes the rejection.
func (v *Verifier) Middleware(next http.Handler, onErr func(http.ResponseWriter, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := v.Verify(extractToken(r))
		if err != nil {
			onErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID)))
	})
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if ck, err := r.Cookie(accessCookie); err == nil {
		return ck.Value
	}
	return ""
}

// SignToken issues a token the Verifier accepts. Used by docctl and tests.
func SignToken(secret, subject, audience string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type userKey struct{}

func ContextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func UserFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	s, ok := ctx.Value(userKey{}).(string)
	return s, ok && s != ""
}
