// Package vision adapts the core's detector, labeler, segmentation, and
// VLM ports onto plain JSON-over-HTTP services, using stdlib net/http
// request/response clients for these external model calls.
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

// DetectorClient implements ports.DetectorPort against a primary object
// detector service reachable over HTTP.
type DetectorClient struct {
	baseURL string
	client  *http.Client
}

// NewDetectorClient builds a DetectorClient bound to baseURL with the given
// request timeout.
func NewDetectorClient(baseURL string, timeout time.Duration) *DetectorClient {
	return &DetectorClient{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

var _ ports.DetectorPort = (*DetectorClient)(nil)

type detectObjectsRequest struct {
	ImageURLs []string `json:"image_urls"`
}

type detectObjectsResponse struct {
	Detections []struct {
		ClassName  string  `json:"class_name"`
		Confidence float64 `json:"confidence"`
		BBox       struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			W float64 `json:"w"`
			H float64 `json:"h"`
		} `json:"bbox"`
	} `json:"detections"`
}

// DetectObjects posts the image set to the detector service and decodes its
// bounding-box predictions.
func (c *DetectorClient) DetectObjects(ctx context.Context, imageURLs []string) ([]ports.ObjectDetection, error) {
	raw, err := json.Marshal(detectObjectsRequest{ImageURLs: imageURLs})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("detector http %d: %s", resp.StatusCode, string(respRaw))
	}

	var decoded detectObjectsResponse
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	out := make([]ports.ObjectDetection, len(decoded.Detections))
	for i, d := range decoded.Detections {
		out[i] = ports.ObjectDetection{
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			BBox:       ports.BoundingBox{X: d.BBox.X, Y: d.BBox.Y, W: d.BBox.W, H: d.BBox.H},
		}
	}
	return out, nil
}
