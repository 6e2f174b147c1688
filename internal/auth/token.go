package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the fixed lifetime of an issued session token.
const TokenTTL = 7 * 24 * time.Hour

// Claims is the signed payload of a session token.
type Claims struct {
	Email string `json:"email"`
	ID    string `json:"id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens with a server-held key.
type Signer struct {
	key []byte
	now func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{key: []byte(secret), now: time.Now}
}

// Issue signs {email, id} with a TokenTTL expiry.
func (s *Signer) Issue(u *PublicUser) (string, error) {
	if u == nil {
		return "", errors.New("issue token: nil user")
	}
	now := s.now()
	claims := Claims{
		Email: u.Email,
		ID:    u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Verify returns the token's claims, or nil when the token is malformed,
// signed with another key or algorithm, or expired. It never panics.
func (s *Signer) Verify(token string) *Claims {
	if token == "" {
		return nil
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || parsed == nil || !parsed.Valid {
		return nil
	}
	return claims
}

// DecodeUnverified reads the payload without checking the signature. The
// result is only fit for display; it proves nothing about the bearer.
func DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
