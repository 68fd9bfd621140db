package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestWriteProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, "no such endpoint", "/weather/map")

	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q, want application/problem+json", ct)
	}

	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid problem body: %v", err)
	}
	if p.Type != ProblemTypeNotFound || p.Status != 404 {
		t.Errorf("problem = %+v", p)
	}
	if p.Detail != "no such endpoint" || p.Instance != "/weather/map" {
		t.Errorf("problem detail/instance = %q/%q", p.Detail, p.Instance)
	}
}
