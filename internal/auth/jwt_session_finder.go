// Package auth bridges the out-of-core OAuth/session-management
// collaborator (spec.md §1, §6) to the core HTTP trigger surface: the
// core never issues or stores sessions, it only validates the bearer
// token that collaborator issued.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cyberdigest/internal/model"
)

// Claims is the payload the external auth collaborator signs. UserID is
// the only field the core pipeline reads.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTSessionFinder implements middleware.SessionFinder by treating the
// "session id" the cookie carries as a signed JWT rather than a row in a
// sessions table: the core trusts an externally-issued principal instead
// of owning session storage (spec.md §1, §6; SPEC_FULL.md §5).
type JWTSessionFinder struct {
	secret []byte
}

// NewJWTSessionFinder constructs a finder that validates tokens signed
// with secret using HS256.
func NewJWTSessionFinder(secret string) *JWTSessionFinder {
	return &JWTSessionFinder{secret: []byte(secret)}
}

// FindByID parses and validates token as a JWT and returns the Session it
// represents. A malformed, unsigned, or expired token is treated the same
// as "no session found" (nil, nil) so the middleware responds 401 rather
// than 500.
func (f *JWTSessionFinder) FindByID(_ context.Context, token string) (*model.Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return f.secret, nil
	})
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return nil, nil
	}

	expiresAt := time.Time{}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &model.Session{
		ID:        token,
		UserID:    claims.UserID,
		ExpiresAt: expiresAt,
	}, nil
}
