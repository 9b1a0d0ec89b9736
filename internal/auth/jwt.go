package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredentials is returned by Login on any mismatch.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Claims is the admin token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Guard issues and verifies the admin bearer token. The credential pair is
// configuration-injected; there is no user directory behind it.
type Guard struct {
	adminEmail    string
	adminPassword string
	signingKey    []byte
	issuer        string
	ttl           time.Duration
}

// NewGuard creates a guard. ttl defaults to 7 days when zero.
func NewGuard(adminEmail, adminPassword, signingKey, issuer string, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Guard{
		adminEmail:    adminEmail,
		adminPassword: adminPassword,
		signingKey:    []byte(signingKey),
		issuer:        issuer,
		ttl:           ttl,
	}
}

// Login compares the pair in constant time and issues an HS256 token
// carrying the email claim.
func (g *Guard) Login(email, password string) (string, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(g.adminEmail)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(g.adminPassword)) == 1
	if !emailOK || !passOK {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.signingKey)
}

// Verify checks signature, expiry and issuer. Callers treat any error
// uniformly as unauthorized; the reason is never surfaced.
func (g *Guard) Verify(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return g.signingKey, nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if g.issuer != "" && claims.Issuer != g.issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}
