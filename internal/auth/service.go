package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/shared"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, time.Time, error)
	DefaultTTL() time.Duration
}

// Option customises a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	issuer   TokenIssuer
	auditor  shared.Auditor
	logger   *slog.Logger
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService constructs a new Service.
func NewService(repo Repository, issuer TokenIssuer, auditor shared.Auditor, logger *slog.Logger, opts ...Option) *Service {
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, issuer: issuer, auditor: auditor, logger: logger, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// HashPassword returns a salted bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// Register creates an account. Duplicate emails fail with ErrEmailTaken.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := normalizeEmail(in.Email)
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, NewUser{
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, shared.AuditLog{
		UserID:     user.ID,
		Action:     "user.register",
		TargetType: "user",
		TargetID:   user.ID,
		Data:       map[string]any{"email": user.Email},
	})
	return user, nil
}

// Authenticate validates email/password credentials. Unknown emails still
// pay for one bcrypt comparison so response timing does not reveal them.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active() {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token for the user's email.
func (s *Service) Login(ctx context.Context, email, password string) (AccessToken, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return AccessToken{}, err
	}
	ttl := s.issuer.DefaultTTL()
	raw, expiresAt, err := s.issuer.Issue(user.Email, ttl)
	if err != nil {
		return AccessToken{}, fmt.Errorf("auth: issue token: %w", err)
	}
	return AccessToken{Token: raw, ExpiresAt: expiresAt, ExpiresIn: ttl}, nil
}

// LookupPrincipal implements identity.PrincipalLookup.
func (s *Service) LookupPrincipal(ctx context.Context, email string) (identity.Principal, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return identity.Principal{}, identity.ErrUnknownPrincipal
		}
		return identity.Principal{}, err
	}
	if !user.Active() {
		return identity.Principal{}, identity.ErrUnknownPrincipal
	}
	return identity.Principal{UserID: user.ID, Email: user.Email, FullName: user.FullName}, nil
}

func (s *Service) audit(ctx context.Context, entry shared.AuditLog) {
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("pocketledger-timing-guard"), s.hashCost)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ identity.PrincipalLookup = (*Service)(nil)
