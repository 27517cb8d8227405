package crypto

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	cookieIssuer   = "starter"
	cookieAudience = "starter-session"
)

var ErrInvalidCookie = errors.New("invalid or expired session cookie")

// CookieSigner wraps session ids in an HS256 token so a tampered cookie is
// rejected before any store lookup.
type CookieSigner struct {
	secret []byte
}

// NewCookieSigner creates a CookieSigner keyed by secret.
func NewCookieSigner(secret string) *CookieSigner {
	return &CookieSigner{secret: []byte(secret)}
}

// Sign returns the cookie value for sessionID. A zero expires leaves the
// token without an exp claim.
func (s *CookieSigner) Sign(sessionID string, expires time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       sessionID,
		Issuer:   cookieIssuer,
		Audience: jwt.ClaimStrings{cookieAudience},
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if !expires.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse validates a cookie value and returns the session id inside it.
func (s *CookieSigner) Parse(value string) (string, error) {
	token, err := jwt.ParseWithClaims(value, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCookie
		}
		return s.secret, nil
	}, jwt.WithIssuer(cookieIssuer), jwt.WithAudience(cookieAudience))
	if err != nil {
		return "", ErrInvalidCookie
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", ErrInvalidCookie
	}

	return claims.ID, nil
}
