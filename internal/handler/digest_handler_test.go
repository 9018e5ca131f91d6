package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cyberdigest/internal/model"
	"cyberdigest/internal/orchestrator"
)

type fakeUserRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error { return nil }
func (f *fakeUserRepo) Update(ctx context.Context, user *model.User) error { return nil }
func (f *fakeUserRepo) ListDueForDigest(ctx context.Context, now time.Time) ([]*model.User, error) {
	return nil, nil
}
func (f *fakeUserRepo) UpdateLastDigestAt(ctx context.Context, userID string, at time.Time) error {
	return nil
}

func TestDigestHandler_Run_Unauthorized(t *testing.T) {
	h := NewDigestHandler(orchestrator.New(orchestrator.Dependencies{Users: &fakeUserRepo{}}))

	req := httptest.NewRequest(http.MethodPost, "/api/digest/run", nil)
	w := httptest.NewRecorder()

	h.Run(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestDigestHandler_Run_UserNotFound(t *testing.T) {
	users := &fakeUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) { return nil, nil },
	}
	h := NewDigestHandler(orchestrator.New(orchestrator.Dependencies{Users: users}))

	req := httptest.NewRequest(http.MethodPost, "/api/digest/run", nil)
	req = withUserID(req, "missing-user")
	w := httptest.NewRecorder()

	h.Run(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}
