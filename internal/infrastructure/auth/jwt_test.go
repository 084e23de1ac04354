package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/invitequeue/internal/domain"
)

func TestJWTManagerGenerateAndVerify(t *testing.T) {
	t.Parallel()

	manager := NewJWTManager("super-secret", time.Minute)

	token, err := manager.Generate("user-123", "user@example.com", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := manager.Verify(token)
	if err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}

	if claims.UserID() != "user-123" || claims.Email != "user@example.com" || claims.Role != domain.RoleAdmin {
		t.Fatalf("expected claims to match user, got %+v", claims)
	}
}

func TestJWTManagerGenerateRejectsBadInput(t *testing.T) {
	t.Parallel()

	manager := NewJWTManager("secret", time.Minute)

	if _, err := manager.Generate("", "", domain.RoleMember); !errors.Is(err, domain.ErrInvalidIDFormat) {
		t.Fatalf("expected ErrInvalidIDFormat, got %v", err)
	}
	if _, err := manager.Generate("u1", "", domain.Role("root")); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestJWTManagerVerifyErrors(t *testing.T) {
	t.Parallel()

	secret := "secret"
	manager := NewJWTManager(secret, time.Minute)
	now := time.Now()

	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}
	registered := func(sub string, exp time.Time) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{Subject: sub, ExpiresAt: jwt.NewNumericDate(exp), IssuedAt: jwt.NewNumericDate(now)}
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{
			name:  "expired",
			token: sign(jwt.SigningMethodHS256, []byte(secret), Claims{Role: domain.RoleMember, RegisteredClaims: registered("u1", now.Add(-time.Hour))}),
			want:  domain.ErrExpiredToken,
		},
		{
			name:  "wrong secret",
			token: sign(jwt.SigningMethodHS256, []byte("other"), Claims{Role: domain.RoleMember, RegisteredClaims: registered("u1", now.Add(time.Hour))}),
			want:  domain.ErrInvalidToken,
		},
		{
			name:  "wrong algorithm",
			token: sign(jwt.SigningMethodHS512, []byte(secret), Claims{Role: domain.RoleMember, RegisteredClaims: registered("u1", now.Add(time.Hour))}),
			want:  domain.ErrInvalidToken,
		},
		{
			name:  "missing subject",
			token: sign(jwt.SigningMethodHS256, []byte(secret), Claims{Role: domain.RoleMember, RegisteredClaims: registered("", now.Add(time.Hour))}),
			want:  domain.ErrInvalidToken,
		},
		{
			name:  "unknown role",
			token: sign(jwt.SigningMethodHS256, []byte(secret), Claims{Role: domain.Role("root"), RegisteredClaims: registered("u1", now.Add(time.Hour))}),
			want:  domain.ErrInvalidToken,
		},
		{
			name:  "missing expiry",
			token: sign(jwt.SigningMethodHS256, []byte(secret), Claims{Role: domain.RoleMember, RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}),
			want:  domain.ErrInvalidToken,
		},
		{
			name:  "garbage",
			token: "not.a.token",
			want:  domain.ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestJWTManagerLeeway(t *testing.T) {
	t.Parallel()

	manager := NewJWTManager("secret", time.Minute)
	issued := time.Now()
	manager.now = func() time.Time { return issued }

	token, err := manager.Generate("u1", "", domain.RoleMember)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	manager.now = func() time.Time { return issued.Add(time.Minute + 10*time.Second) }
	if _, err := manager.Verify(token); err != nil {
		t.Fatalf("expected token within leeway to verify, got %v", err)
	}

	manager.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := manager.Verify(token); !errors.Is(err, domain.ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}
