package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cyberdigest/internal/middleware"
)

// withUserID injects an authenticated user ID the way SessionMiddleware
// would, for handler tests that skip the middleware chain.
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam injects a chi URL parameter for handler tests that
// call the handler function directly rather than through a router.
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}
