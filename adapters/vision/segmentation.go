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

// SegmentationClient implements ports.SegmentationPort against an optional
// damage segmentation service reachable over HTTP.
type SegmentationClient struct {
	baseURL string
	client  *http.Client
}

// NewSegmentationClient builds a SegmentationClient bound to baseURL with
// the given request timeout.
func NewSegmentationClient(baseURL string, timeout time.Duration) *SegmentationClient {
	return &SegmentationClient{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

var _ ports.SegmentationPort = (*SegmentationClient)(nil)

type segmentDamageRequest struct {
	ImageURL    string   `json:"image_url"`
	DamageTypes []string `json:"damage_types"`
}

type segmentDamageResponse struct {
	Masks map[string]struct {
		Masks  []string `json:"masks"`
		Boxes  []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			W float64 `json:"w"`
			H float64 `json:"h"`
		} `json:"boxes"`
		Scores       []float64 `json:"scores"`
		NumInstances int       `json:"num_instances"`
	} `json:"masks"`
}

// SegmentDamage posts one image and the damage types of interest to the
// segmentation service and decodes its per-type masks.
func (c *SegmentationClient) SegmentDamage(ctx context.Context, imageURL string, damageTypes []string) (map[string]ports.SegmentationMask, error) {
	raw, err := json.Marshal(segmentDamageRequest{ImageURL: imageURL, DamageTypes: damageTypes})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/segment", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("segmentation request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("segmentation http %d: %s", resp.StatusCode, string(respRaw))
	}

	var decoded segmentDamageResponse
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	out := make(map[string]ports.SegmentationMask, len(decoded.Masks))
	for damageType, m := range decoded.Masks {
		boxes := make([]ports.BoundingBox, len(m.Boxes))
		for i, b := range m.Boxes {
			boxes[i] = ports.BoundingBox{X: b.X, Y: b.Y, W: b.W, H: b.H}
		}
		out[damageType] = ports.SegmentationMask{
			Masks:        m.Masks,
			Boxes:        boxes,
			Scores:       m.Scores,
			NumInstances: m.NumInstances,
		}
	}
	return out, nil
}
