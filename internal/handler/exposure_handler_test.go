package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cyberdigest/internal/model"
)

func sampleExposure() *model.UserCVEExposure {
	return &model.UserCVEExposure{
		UserID:          "user-1",
		CVEID:           "CVE-2024-1234",
		State:           model.ExposureVulnerable,
		AutoClassified:  true,
		FirstDetectedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExposureHandler_List_JSON(t *testing.T) {
	exposures := &fakeExposureRepo{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.UserCVEExposure, error) {
			return []*model.UserCVEExposure{sampleExposure()}, nil
		},
	}
	h := NewExposureHandler(exposures, &fakeArticleCVERepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/exposure", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	var resp []exposureResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].CVEID != "CVE-2024-1234" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestExposureHandler_List_CSVFormat(t *testing.T) {
	exposures := &fakeExposureRepo{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.UserCVEExposure, error) {
			return []*model.UserCVEExposure{sampleExposure()}, nil
		},
	}
	h := NewExposureHandler(exposures, &fakeArticleCVERepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/exposure?format=csv", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if ct := w.Result().Header.Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("csv parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 (header + one row)", len(records))
	}
	if records[1][0] != "CVE-2024-1234" {
		t.Errorf("row cve_id = %q, want CVE-2024-1234", records[1][0])
	}
}

func TestExposureHandler_List_FiltersByState(t *testing.T) {
	var receivedState model.ExposureState
	exposures := &fakeExposureRepo{
		listByStateFn: func(ctx context.Context, userID string, state model.ExposureState) ([]*model.UserCVEExposure, error) {
			receivedState = state
			return nil, nil
		},
	}
	h := NewExposureHandler(exposures, &fakeArticleCVERepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/exposure?state=FIXED", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if receivedState != model.ExposureFixed {
		t.Errorf("state = %q, want %q", receivedState, model.ExposureFixed)
	}
}

func TestExposureHandler_Metrics_ReturnsAggregation(t *testing.T) {
	cvss := 9.8
	exposures := &fakeExposureRepo{
		listByUserIDFn: func(ctx context.Context, userID string) ([]*model.UserCVEExposure, error) {
			return []*model.UserCVEExposure{sampleExposure()}, nil
		},
	}
	cves := &fakeArticleCVERepo{
		findEnrichedByCVEIDFn: func(ctx context.Context, cveID string) (*model.ArticleCVE, error) {
			return &model.ArticleCVE{CVEID: cveID, CVSSScore: &cvss, InKEV: true}, nil
		},
	}
	h := NewExposureHandler(exposures, cves)

	req := httptest.NewRequest(http.MethodGet, "/api/exposure/metrics", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Metrics(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	var resp model.RemediationMetrics
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.KEVExposureCount != 1 {
		t.Errorf("KEVExposureCount = %d, want 1", resp.KEVExposureCount)
	}
}
