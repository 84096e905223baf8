package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"triage-chatbot/pkg"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Claims is the payload of a session token.
type Claims struct {
	UserID int64    `json:"user_id"`
	Email  string   `json:"email"`
	Role   pkg.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and parses HS256 tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer constructs an Issuer.  Tokens expire after ttl.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a token for u.
func (i *Issuer) Issue(u *pkg.User) (string, error) {
	now := i.now()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Parse verifies the signature and expiry of token.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return claims, nil
}

// UserStore is the part of the credential store auth needs.
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (*pkg.User, error)
	GetUserByEmail(ctx context.Context, email string) (*pkg.User, error)
}

// Service logs users in and resolves tokens back to users.
type Service struct {
	Issuer *Issuer
	Users  UserStore
}

// NewService constructs a Service.
func NewService(issuer *Issuer, users UserStore) *Service {
	return &Service{Issuer: issuer, Users: users}
}

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login checks the credentials and returns a fresh token.  Unknown emails
// and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, *pkg.User, error) {
	u, err := s.Users.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, pkg.ErrNotFound) {
		burnCompare(password)
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.Issuer.Issue(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Authenticate resolves a raw token or an "Authorization: Bearer" value to
// the stored user.  A token whose role claim no longer matches the stored
// role is rejected.
func (s *Service) Authenticate(ctx context.Context, header string) (*pkg.User, error) {
	token := BearerToken(header)
	if token == "" {
		return nil, fmt.Errorf("%w: token is missing", ErrUnauthenticated)
	}
	claims, err := s.Issuer.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := s.Users.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, pkg.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown user %d", ErrUnauthenticated, claims.UserID)
	}
	if err != nil {
		return nil, err
	}
	if u.Role != claims.Role {
		return nil, fmt.Errorf("%w: stale role claim", ErrUnauthenticated)
	}
	return u, nil
}

// BearerToken strips an optional "Bearer " prefix.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
