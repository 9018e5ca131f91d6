package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"cyberdigest/internal/middleware"
	"cyberdigest/internal/model"
	"cyberdigest/internal/orchestrator"
)

// DigestHandler exposes POST /api/digest/run (spec.md §6).
type DigestHandler struct {
	Orchestrator *orchestrator.Orchestrator
}

// NewDigestHandler builds a DigestHandler.
func NewDigestHandler(o *orchestrator.Orchestrator) *DigestHandler {
	return &DigestHandler{Orchestrator: o}
}

type digestRunResponse struct {
	UserID     string             `json:"userId"`
	Scraped    int                `json:"scraped"`
	Matched    int                `json:"matched"`
	Summarized int                `json:"summarized"`
	Errors     []digestErrorEntry `json:"errors,omitempty"`
}

type digestErrorEntry struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// Run triggers one synchronous C10 pass for the authenticated user.
// A full run can take several minutes; callers are expected to poll
// GET /api/feed/brief afterward rather than hold the connection open
// through a proxy timeout, mirroring how the teacher's own long-running
// fetch endpoints behave.
func (h *DigestHandler) Run(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError(""))
		return
	}

	result, err := h.Orchestrator.RunForUser(r.Context(), userID)
	if err != nil {
		slog.Error("digest run failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(userID))
		return
	}

	resp := digestRunResponse{
		UserID:     result.UserID,
		Scraped:    result.Scraped,
		Matched:    result.Matched,
		Summarized: result.Summarized,
	}
	for _, apiErr := range result.Errors {
		resp.Errors = append(resp.Errors, digestErrorEntry{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
