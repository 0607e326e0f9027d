// Package auth verifies the identity tokens presented by connecting clients.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
	"github.com/golang-jwt/jwt"
)

const (
	TokenCookieKey = "token"
	TokenQueryKey  = "token"

	DefaultExpiration = time.Hour * 24
)

type Claims struct {
	Role types.Role `json:"role"`
	jwt.StandardClaims
}

// Verifier validates HS256 identity tokens signed with a shared key.
type Verifier struct {
	signingKey []byte
	now        func() time.Time
}

func NewVerifier(signingKey []byte) *Verifier {
	return &Verifier{signingKey: signingKey, now: time.Now}
}

// Verify checks the token's signature and expiry and returns the identity it
// carries. Every failure is reported as types.ErrUnauthenticated.
func (v *Verifier) Verify(tokenString string) (types.Identity, error) {
	if tokenString == "" {
		return types.Identity{}, fmt.Errorf("%w: missing token", types.ErrUnauthenticated)
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: parse token: %v", types.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return types.Identity{}, fmt.Errorf("%w: invalid token", types.ErrUnauthenticated)
	}

	if claims.ExpiresAt == 0 || v.now().Unix() >= claims.ExpiresAt {
		return types.Identity{}, fmt.Errorf("%w: token expired", types.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return types.Identity{}, fmt.Errorf("%w: missing subject claim", types.ErrUnauthenticated)
	}
	if !claims.Role.Valid() {
		return types.Identity{}, fmt.Errorf("%w: invalid role claim %q", types.ErrUnauthenticated, claims.Role)
	}

	return types.Identity{SubjectId: claims.Subject, Role: claims.Role}, nil
}

// Issue signs a token for id that expires after exp. Tokens are normally
// issued by the identity provider; this is used by tooling and tests.
func Issue(signingKey []byte, id types.Identity, exp time.Duration) (string, error) {
	if !id.Role.Valid() {
		return "", errors.New("invalid role")
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: id.Role,
		StandardClaims: jwt.StandardClaims{
			Subject:   id.SubjectId,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(exp).Unix(),
		},
	})

	return token.SignedString(signingKey)
}

// TokenFromRequest extracts the bearer credential from the Authorization
// header, the token cookie or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}

	if c, err := r.Cookie(TokenCookieKey); err == nil && c.Value != "" {
		return c.Value
	}

	return r.URL.Query().Get(TokenQueryKey)
}
