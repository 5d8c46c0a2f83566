package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnalyzeVisionDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"labels":            []map[string]any{{"description": "shingle", "score": 0.9}},
			"objects":           []map[string]any{{"name": "roof", "score": 0.95}},
			"detected_features": []string{"missing_shingles"},
			"property_type":     "residential",
			"condition":         "fair",
			"complexity":        "moderate",
			"confidence":        0.88,
		})
	}))
	defer server.Close()

	client := NewLabelerClient(server.URL, time.Second)
	analysis, err := client.AnalyzeVision(context.Background(), []string{"http://img/1.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(analysis.Labels) != 1 || analysis.Labels[0].Description != "shingle" {
		t.Fatalf("unexpected labels: %+v", analysis.Labels)
	}
	if analysis.PropertyType != "residential" || analysis.Confidence != 0.88 {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}
}
