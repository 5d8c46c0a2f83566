package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gohypo/ports"
)

// LabelerClient implements ports.VisionLabelerPort against a secondary
// vision labeling service reachable over HTTP.
type LabelerClient struct {
	baseURL string
	client  *http.Client
}

// NewLabelerClient builds a LabelerClient bound to baseURL with the given
// request timeout.
func NewLabelerClient(baseURL string, timeout time.Duration) *LabelerClient {
	return &LabelerClient{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

var _ ports.VisionLabelerPort = (*LabelerClient)(nil)

type analyzeVisionRequest struct {
	ImageURLs []string `json:"image_urls"`
}

type analyzeVisionResponse struct {
	Labels []struct {
		Description string  `json:"description"`
		Score       float64 `json:"score"`
	} `json:"labels"`
	Objects []struct {
		Name  string  `json:"name"`
		Score float64 `json:"score"`
	} `json:"objects"`
	DetectedFeatures []string `json:"detected_features"`
	PropertyType     string   `json:"property_type"`
	Condition        string   `json:"condition"`
	Complexity       string   `json:"complexity"`
	Confidence       float64  `json:"confidence"`
}

// AnalyzeVision posts the image set to the vision labeling service and
// decodes its structured analysis.
func (c *LabelerClient) AnalyzeVision(ctx context.Context, imageURLs []string) (ports.VisionAnalysis, error) {
	raw, err := json.Marshal(analyzeVisionRequest{ImageURLs: imageURLs})
	if err != nil {
		return ports.VisionAnalysis{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(raw))
	if err != nil {
		return ports.VisionAnalysis{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ports.VisionAnalysis{}, fmt.Errorf("labeler request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.VisionAnalysis{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ports.VisionAnalysis{}, fmt.Errorf("labeler http %d: %s", resp.StatusCode, string(respRaw))
	}

	var decoded analyzeVisionResponse
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return ports.VisionAnalysis{}, fmt.Errorf("unmarshal response: %w", err)
	}

	labels := make([]ports.VisionLabel, len(decoded.Labels))
	for i, l := range decoded.Labels {
		labels[i] = ports.VisionLabel{Description: l.Description, Score: l.Score}
	}
	objects := make([]ports.VisionObject, len(decoded.Objects))
	for i, o := range decoded.Objects {
		objects[i] = ports.VisionObject{Name: o.Name, Score: o.Score}
	}

	return ports.VisionAnalysis{
		Labels:           labels,
		Objects:          objects,
		DetectedFeatures: decoded.DetectedFeatures,
		PropertyType:     decoded.PropertyType,
		Condition:        decoded.Condition,
		Complexity:       decoded.Complexity,
		Confidence:       decoded.Confidence,
	}, nil
}
