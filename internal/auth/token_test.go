package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testUser = &PublicUser{ID: "u-1", Email: "sahadeva@example.com"}

func TestTokenExpiryIsSevenDays(t *testing.T) {
	s := NewSigner("k")
	tok, err := s.Issue(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := DecodeUnverified(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := c.ExpiresAt.Time.Sub(c.IssuedAt.Time)
	if got != TokenTTL {
		t.Fatalf("unexpected lifetime: %v", got)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	s := NewSigner("k")
	tok, err := s.Issue(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parts := strings.Split(tok, ".")
	sig := []byte(parts[2])
	if sig[5] == 'a' {
		sig[5] = 'b'
	} else {
		sig[5] = 'a'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)
	if c := s.Verify(tampered); c != nil {
		t.Fatalf("tampered token verified: %+v", c)
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	tok, err := NewSigner("other").Issue(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if c := NewSigner("k").Verify(tok); c != nil {
		t.Fatalf("token signed with another key verified")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	s := NewSigner("k")
	s.now = func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	tok, err := s.Issue(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	s.now = time.Now
	if c := s.Verify(tok); c != nil {
		t.Fatalf("expired token verified")
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		Email: testUser.Email,
		ID:    testUser.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if c := NewSigner("k").Verify(tok); c != nil {
		t.Fatalf("unsigned token verified")
	}
}

func TestVerifyGarbageNeverPanics(t *testing.T) {
	s := NewSigner("k")
	for _, in := range []string{"", ".", "a.b.c", "not a token", strings.Repeat("x", 4096)} {
		if c := s.Verify(in); c != nil {
			t.Fatalf("garbage %q verified", in)
		}
	}
}

func TestDecodeUnverifiedIgnoresSignature(t *testing.T) {
	tok, err := NewSigner("whatever").Issue(testUser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	c, err := DecodeUnverified(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Email != testUser.Email {
		t.Fatalf("unexpected email: %s", c.Email)
	}
	if _, err := DecodeUnverified("bogus"); err == nil {
		t.Fatalf("expected decode error for malformed token")
	}
}
