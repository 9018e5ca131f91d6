package handler

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"cyberdigest/internal/exposure"
	"cyberdigest/internal/middleware"
	"cyberdigest/internal/model"
	"cyberdigest/internal/repository"
)

// ExposureHandler exposes GET /api/exposure and GET /api/exposure/metrics
// (spec.md §6, SPEC_FULL.md §4 "CSV/JSON export").
type ExposureHandler struct {
	Exposures repository.UserCVEExposureRepository
	CVEs      repository.ArticleCVERepository
}

// NewExposureHandler builds an ExposureHandler.
func NewExposureHandler(exposures repository.UserCVEExposureRepository, cves repository.ArticleCVERepository) *ExposureHandler {
	return &ExposureHandler{Exposures: exposures, CVEs: cves}
}

type exposureResponse struct {
	UserID              string     `json:"userId"`
	CVEID               string     `json:"cveId"`
	TechStackItemID     string     `json:"techStackItemId,omitempty"`
	State               string     `json:"state"`
	AutoClassified      bool       `json:"autoClassified"`
	MatchedCPE          string     `json:"matchedCpe,omitempty"`
	FirstDetectedAt     time.Time  `json:"firstDetectedAt"`
	PatchedAt           *time.Time `json:"patchedAt,omitempty"`
	RemediationDeadline *time.Time `json:"remediationDeadline,omitempty"`
	Notes               string     `json:"notes,omitempty"`
}

func toExposureResponse(e *model.UserCVEExposure) exposureResponse {
	return exposureResponse{
		UserID:              e.UserID,
		CVEID:               e.CVEID,
		TechStackItemID:     e.TechStackItemID,
		State:               string(e.State),
		AutoClassified:      e.AutoClassified,
		MatchedCPE:          e.MatchedCPE,
		FirstDetectedAt:     e.FirstDetectedAt,
		PatchedAt:           e.PatchedAt,
		RemediationDeadline: e.RemediationDeadline,
		Notes:               e.Notes,
	}
}

// List handles GET /api/exposure[?state=VULNERABLE][&format=csv]. The
// format negotiation mirrors the teacher's content-negotiation style:
// an explicit query parameter picks the representation rather than
// parsing the Accept header, since the frontend always controls both.
func (h *ExposureHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError(""))
		return
	}

	var exposures []*model.UserCVEExposure
	if state := r.URL.Query().Get("state"); state != "" {
		exposures, err = h.Exposures.ListByState(r.Context(), userID, model.ExposureState(state))
	} else {
		exposures, err = h.Exposures.ListByUserID(r.Context(), userID)
	}
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		writeExposureCSV(w, exposures)
		return
	}

	resp := make([]exposureResponse, 0, len(exposures))
	for _, e := range exposures {
		resp = append(resp, toExposureResponse(e))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeExposureCSV(w http.ResponseWriter, exposures []*model.UserCVEExposure) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="exposure.csv"`)
	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{"cve_id", "state", "auto_classified", "matched_cpe", "first_detected_at", "patched_at", "remediation_deadline", "notes"})
	for _, e := range exposures {
		cw.Write([]string{
			e.CVEID,
			string(e.State),
			strconv.FormatBool(e.AutoClassified),
			e.MatchedCPE,
			e.FirstDetectedAt.Format(time.RFC3339),
			formatNillableTime(e.PatchedAt),
			formatNillableTime(e.RemediationDeadline),
			e.Notes,
		})
	}
}

func formatNillableTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Metrics handles GET /api/exposure/metrics, surfacing the remediation
// aggregation spec.md §4.9 defines (patch rate, SLA compliance, MTTR,
// KEV exposure counts).
func (h *ExposureHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError(""))
		return
	}

	exposures, err := h.Exposures.ListByUserID(r.Context(), userID)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	cvssByID := make(map[string]*float64, len(exposures))
	kevByID := make(map[string]bool, len(exposures))
	for _, e := range exposures {
		enriched, err := h.CVEs.FindEnrichedByCVEID(r.Context(), e.CVEID)
		if err != nil || enriched == nil {
			continue
		}
		cvssByID[e.CVEID] = enriched.CVSSScore
		kevByID[e.CVEID] = enriched.InKEV
	}

	metrics := exposure.RemediationMetrics(exposures, cvssByID, kevByID, time.Now().UTC())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics)
}
