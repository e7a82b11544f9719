package domain

import "testing"

func TestExperimentRequestNormalize(t *testing.T) {
	blank := "  "
	req := ExperimentRequest{Description: "  pendulum period  ", SessionID: &blank}
	req.Normalize("gpt-4o")

	if req.Description != "pendulum period" {
		t.Errorf("Expected trimmed description, got %q", req.Description)
	}
	if req.GradeLevel != DefaultGradeLevel {
		t.Errorf("Expected grade level %q, got %q", DefaultGradeLevel, req.GradeLevel)
	}
	if req.ModelName != "gpt-4o" {
		t.Errorf("Expected default model, got %q", req.ModelName)
	}
	if req.SessionID != nil {
		t.Errorf("Expected blank session id to be cleared, got %q", *req.SessionID)
	}
}

func TestSessionEnsureCollections(t *testing.T) {
	s := &Session{}
	s.EnsureCollections()
	if s.Files == nil || s.Todos == nil || s.Images == nil || s.Messages == nil {
		t.Fatalf("Expected empty collections, got %+v", s)
	}
}
