package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/templehubsakshi/FlowSpace/internal/adapter/memstore"
	"github.com/templehubsakshi/FlowSpace/internal/config"
	"github.com/templehubsakshi/FlowSpace/internal/domain"
	"github.com/templehubsakshi/FlowSpace/internal/domain/user"
)

func testAuthConfig() *config.Auth {
	return &config.Auth{
		JWTSecret:   "test-secret-key-must-be-long-enough",
		Issuer:      "flowspace",
		Audience:    "flowspace-api",
		TokenExpiry: 15 * time.Minute,
		BcryptCost:  4, // low cost for fast tests
	}
}

func newTestAuthService(t *testing.T, store *memstore.Store) *AuthService {
	t.Helper()
	svc, err := NewAuthService(store, testAuthConfig())
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc := newTestAuthService(t, memstore.New())
	ctx := context.Background()

	reg, err := svc.Register(ctx, user.RegisterRequest{Name: "Ada", Email: " Ada@Example.com ", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.User.Email != "ada@example.com" {
		t.Errorf("email = %q, want ada@example.com", reg.User.Email)
	}
	if reg.Token == "" {
		t.Error("token is empty")
	}

	resp, err := svc.Login(ctx, user.LoginRequest{Email: "ada@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != reg.User.ID {
		t.Errorf("subject = %q, want %q", claims.UserID, reg.User.ID)
	}
	if claims.Name != "Ada" {
		t.Errorf("name = %q, want Ada", claims.Name)
	}
}

func TestAuthService_DuplicateEmail(t *testing.T) {
	svc := newTestAuthService(t, memstore.New())
	ctx := context.Background()
	req := user.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"}
	if _, err := svc.Register(ctx, req); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, req); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second register err = %v, want ErrConflict", err)
	}
}

func TestAuthService_InvalidLogin(t *testing.T) {
	svc := newTestAuthService(t, memstore.New())
	ctx := context.Background()
	if _, err := svc.Register(ctx, user.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name string
		req  user.LoginRequest
		want error
	}{
		{"wrong password", user.LoginRequest{Email: "ada@example.com", Password: "nope123"}, domain.ErrUnauthorized},
		{"unknown email", user.LoginRequest{Email: "bob@example.com", Password: "secret1"}, domain.ErrUnauthorized},
		{"missing fields", user.LoginRequest{Email: "ada@example.com"}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Login(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthService_RegisterValidation(t *testing.T) {
	svc := newTestAuthService(t, memstore.New())
	_, err := svc.Register(context.Background(), user.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "123"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestAuthService_VerifyRejects(t *testing.T) {
	store := memstore.New()
	svc := newTestAuthService(t, store)
	u := &user.User{ID: "u1", Email: "ada@example.com", Name: "Ada"}

	expired := newTestAuthService(t, store)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredTok, err := expired.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	otherCfg := testAuthConfig()
	otherCfg.JWTSecret = "a-different-secret-entirely"
	other, err := NewAuthService(store, otherCfg)
	if err != nil {
		t.Fatal(err)
	}
	forged, err := other.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	audCfg := testAuthConfig()
	audCfg.Audience = "someone-else"
	wrongAud, err := NewAuthService(store, audCfg)
	if err != nil {
		t.Fatal(err)
	}
	wrongAudTok, err := wrongAud.IssueToken(u)
	if err != nil {
		t.Fatal(err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expiredTok},
		{"wrong secret", forged},
		{"wrong audience", wrongAudTok},
		{"alg none", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.VerifyToken(tt.token); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestAuthService_AuthenticateRequiresExistingUser(t *testing.T) {
	store := memstore.New()
	svc := newTestAuthService(t, store)
	ctx := context.Background()

	ghost, err := svc.IssueToken(&user.User{ID: "deleted-user", Email: "x@example.com", Name: "X"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Authenticate(ctx, ghost); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	reg, err := svc.Register(ctx, user.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	u, err := svc.Authenticate(ctx, reg.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.ID != reg.User.ID {
		t.Errorf("id = %q, want %q", u.ID, reg.User.ID)
	}
}
