package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/templehubsakshi/FlowSpace/internal/config"
	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
	"github.com/templehubsakshi/FlowSpace/internal/port/database"
)

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)

// accessClaims is the JWT body of an access token.
type accessClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthService issues and verifies access tokens and owns the user accounts
// they refer to. The same verification serves HTTP requests and the
// realtime connection handshake.
type AuthService struct {
	store  database.UserStore
	cfg    *config.Auth
	secret []byte
	parser *jwt.Parser
	jwks   *keyfunc.JWKS
	now    func() time.Time
}

// NewAuthService creates an AuthService. When cfg.JWKSURL is set, RS256
// tokens signed by the external identity provider are accepted as well.
func NewAuthService(store database.UserStore, cfg *config.Auth) (*AuthService, error) {
	s := &AuthService{
		store:  store,
		cfg:    cfg,
		secret: []byte(cfg.JWTSecret),
		now:    time.Now,
	}
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if cfg.JWKSURL != "" {
		jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				slog.Warn("jwks refresh failed", "url", cfg.JWKSURL, "error", err)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("load jwks: %w", err)
		}
		s.jwks = jwks
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	s.parser = jwt.NewParser(jwt.WithValidMethods(methods))
	return s, nil
}

// Close stops the background JWKS refresh, if any.
func (s *AuthService) Close() {
	if s.jwks != nil {
		s.jwks.EndBackground()
	}
}

// CreateUser validates req, hashes the password and stores the account.
func (s *AuthService) CreateUser(ctx context.Context, req user.RegisterRequest) (*user.User, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &user.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", domain.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Register creates an account and signs the new user in.
func (s *AuthService) Register(ctx context.Context, req user.RegisterRequest) (*user.LoginResponse, error) {
	u, err := s.CreateUser(ctx, req)
	if err != nil {
		return nil, err
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "user registered", "user_id", u.ID)
	return &user.LoginResponse{Token: token, User: u}, nil
}

// Login checks the password and returns a fresh access token.
func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (*user.LoginResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, domain.Invalid("email and password are required")
	}
	u, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &user.LoginResponse{Token: token, User: u}, nil
}

// IssueToken signs an HS256 access token for u.
func (s *AuthService) IssueToken(u *user.User) (string, error) {
	now := s.now()
	claims := accessClaims{
		Email: u.Email,
		Name:  u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenExpiry)),
			ID:        uuid.NewString(),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks the signature, lifetime, issuer and audience of raw.
// Any failure is reported as domain.ErrUnauthorized.
func (s *AuthService) VerifyToken(raw string) (*user.TokenClaims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}
	var claims accessClaims
	tok, err := s.parser.ParseWithClaims(raw, &claims, s.keyFor)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	if s.cfg.Issuer != "" && !claims.VerifyIssuer(s.cfg.Issuer, true) {
		return nil, fmt.Errorf("%w: invalid issuer", domain.ErrUnauthorized)
	}
	if s.cfg.Audience != "" && !claims.VerifyAudience(s.cfg.Audience, true) {
		return nil, fmt.Errorf("%w: invalid audience", domain.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrUnauthorized)
	}
	return &user.TokenClaims{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Authenticate verifies raw and loads the account it names. A token for a
// deleted account is rejected.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*user.User, error) {
	claims, err := s.VerifyToken(raw)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	return u, nil
}

// GetUser returns an account by id.
func (s *AuthService) GetUser(ctx context.Context, id string) (*user.User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers returns all accounts, oldest first.
func (s *AuthService) ListUsers(ctx context.Context) ([]user.User, error) {
	return s.store.ListUsers(ctx)
}

func (s *AuthService) keyFor(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return s.secret, nil
	case *jwt.SigningMethodRSA:
		if s.jwks == nil {
			return nil, errors.New("jwks not configured")
		}
		return s.jwks.Keyfunc(t)
	}
	return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
}
