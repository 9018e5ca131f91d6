package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestJWTSessionFinder_ValidToken_ReturnsSession(t *testing.T) {
	finder := NewJWTSessionFinder("test-secret")
	expiresAt := time.Now().Add(1 * time.Hour)
	token := signToken(t, "test-secret", &Claims{
		UserID: "user-123",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	session, err := finder.FindByID(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session == nil {
		t.Fatal("expected non-nil session")
	}
	if session.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", session.UserID, "user-123")
	}
}

func TestJWTSessionFinder_WrongSecret_ReturnsNil(t *testing.T) {
	finder := NewJWTSessionFinder("test-secret")
	token := signToken(t, "other-secret", &Claims{UserID: "user-123"})

	session, err := finder.FindByID(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Error("expected nil session for token signed with wrong secret")
	}
}

func TestJWTSessionFinder_ExpiredToken_ReturnsNil(t *testing.T) {
	finder := NewJWTSessionFinder("test-secret")
	token := signToken(t, "test-secret", &Claims{
		UserID: "user-123",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
		},
	})

	session, err := finder.FindByID(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Error("expected nil session for expired token")
	}
}

func TestJWTSessionFinder_MalformedToken_ReturnsNil(t *testing.T) {
	finder := NewJWTSessionFinder("test-secret")

	session, err := finder.FindByID(context.Background(), "not-a-jwt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Error("expected nil session for malformed token")
	}
}

func TestJWTSessionFinder_MissingUserID_ReturnsNil(t *testing.T) {
	finder := NewJWTSessionFinder("test-secret")
	token := signToken(t, "test-secret", &Claims{})

	session, err := finder.FindByID(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Error("expected nil session when claims carry no user id")
	}
}
