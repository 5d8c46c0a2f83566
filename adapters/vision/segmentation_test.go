package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSegmentDamageDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/segment" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var req segmentDamageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.DamageTypes) != 1 || req.DamageTypes[0] != "hail" {
			t.Fatalf("unexpected damage types: %+v", req.DamageTypes)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"masks": map[string]any{
				"hail": map[string]any{
					"masks":         []string{"base64mask"},
					"boxes":         []map[string]float64{{"x": 0, "y": 0, "w": 1, "h": 1}},
					"scores":        []float64{0.7},
					"num_instances": 1,
				},
			},
		})
	}))
	defer server.Close()

	client := NewSegmentationClient(server.URL, time.Second)
	masks, err := client.SegmentDamage(context.Background(), "http://img/1.jpg", []string{"hail"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mask, ok := masks["hail"]
	if !ok || mask.NumInstances != 1 || len(mask.Boxes) != 1 {
		t.Fatalf("unexpected masks: %+v", masks)
	}
}
