package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDetectObjectsDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req detectObjectsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.ImageURLs) != 1 {
			t.Fatalf("expected one image url, got %d", len(req.ImageURLs))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class_name": "roof_damage", "confidence": 0.82, "bbox": map[string]float64{"x": 1, "y": 2, "w": 3, "h": 4}},
			},
		})
	}))
	defer server.Close()

	client := NewDetectorClient(server.URL, time.Second)
	detections, err := client.DetectObjects(context.Background(), []string{"http://img/1.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(detections) != 1 || detections[0].ClassName != "roof_damage" {
		t.Fatalf("unexpected detections: %+v", detections)
	}
	if detections[0].BBox.W != 3 {
		t.Fatalf("unexpected bbox: %+v", detections[0].BBox)
	}
}

func TestDetectObjectsPropagatesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewDetectorClient(server.URL, time.Second)
	if _, err := client.DetectObjects(context.Background(), []string{"http://img/1.jpg"}); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
