// Package auth implements the credential service: password hashing, user
// lookup, and session token issuance and verification.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/gita-voice-lab/internal/logging"
)

// DefaultHashCost is the bcrypt cost used for new passwords.
const DefaultHashCost = 10

// Service registers and authenticates users and issues their tokens.
type Service struct {
	store    UserStore
	signer   *Signer
	hashCost int
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) ServiceOption {
	return func(s *Service) {
		s.hashCost = cost
	}
}

func NewService(store UserStore, signer *Signer, opts ...ServiceOption) *Service {
	s := &Service{store: store, signer: signer, hashCost: DefaultHashCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail trims and lower-cases an identity so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user. It fails with ErrAlreadyExists when the email is
// taken and ErrInvalidInput when either field is empty.
func (s *Service) Register(ctx context.Context, email, password string) (*PublicUser, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password too long", ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Email: email, PasswordHash: string(hash)}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	logging.Infow("auth: user registered", logging.UserFields(u.ID, u.Email)...)
	return u.Public(), nil
}

// Authenticate returns the user when password matches the stored hash. An
// unknown email or a wrong password both yield (nil, nil).
func (s *Service) Authenticate(ctx context.Context, email, password string) (*PublicUser, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		logging.Debugw("auth: password mismatch", logging.UserFields(u.ID, u.Email)...)
		return nil, nil
	}
	return u.Public(), nil
}

// Issue signs a session token for u.
func (s *Service) Issue(u *PublicUser) (string, error) {
	return s.signer.Issue(u)
}

// Verify checks a session token. Any failure yields nil.
func (s *Service) Verify(token string) *Claims {
	return s.signer.Verify(token)
}
