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

// VLMClient implements ports.VLMAssessorPort against an OpenAI-compatible
// chat completions endpoint, using JSON-mode requests for structured
// model output.
type VLMClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewVLMClient builds a VLMClient bound to baseURL, authenticating with
// apiKey and requesting completions from model.
func NewVLMClient(baseURL, apiKey, model string, timeout time.Duration) *VLMClient {
	return &VLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

var _ ports.VLMAssessorPort = (*VLMClient)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string             `json:"model"`
	Messages       []chatMessage      `json:"messages"`
	ResponseFormat *map[string]string `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// vlmSchema mirrors ports.VLMAssessment for JSON decoding; kept distinct so
// the wire field names can differ from the Go field names.
type vlmSchema struct {
	DamageType           string   `json:"damage_type"`
	Severity             string   `json:"severity"`
	Confidence           float64  `json:"confidence"`
	Location             string   `json:"location"`
	Description          string   `json:"description"`
	DetectedItems        []string `json:"detected_items"`
	SafetyHazards        []string `json:"safety_hazards"`
	ComplianceIssues     []string `json:"compliance_issues"`
	RiskFactors          []string `json:"risk_factors"`
	Urgency              string   `json:"urgency"`
	HomeownerExplanation string   `json:"homeowner_explanation"`
	ContractorAdvice     string   `json:"contractor_advice"`
}

// AssessWithVLM sends the image set and prompts to the VLM and decodes its
// JSON-mode response into the AI Assessment Schema.
func (c *VLMClient) AssessWithVLM(ctx context.Context, images []string, systemPrompt, userPrompt string) (ports.VLMAssessment, error) {
	userContent := userPrompt
	if len(images) > 0 {
		userContent = fmt.Sprintf("%s\n\nImages: %s", userPrompt, strings.Join(images, ", "))
	}

	body := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		ResponseFormat: &map[string]string{"type": "json_object"},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return ports.VLMAssessment{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return ports.VLMAssessment{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ports.VLMAssessment{}, fmt.Errorf("vlm request failed: %w", err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ports.VLMAssessment{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ports.VLMAssessment{}, fmt.Errorf("vlm http %d: %s", resp.StatusCode, string(respRaw))
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(respRaw, &decoded); err != nil {
		return ports.VLMAssessment{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return ports.VLMAssessment{}, fmt.Errorf("vlm response missing choices")
	}

	content := cleanJSONContent(decoded.Choices[0].Message.Content)
	var schema vlmSchema
	if err := json.Unmarshal([]byte(content), &schema); err != nil {
		return ports.VLMAssessment{}, fmt.Errorf("failed to parse vlm json content: %w\ncontent: %s", err, content)
	}

	return ports.VLMAssessment{
		DamageType:           schema.DamageType,
		Severity:             schema.Severity,
		Confidence:           schema.Confidence,
		Location:             schema.Location,
		Description:          schema.Description,
		DetectedItems:        schema.DetectedItems,
		SafetyHazards:        schema.SafetyHazards,
		ComplianceIssues:     schema.ComplianceIssues,
		RiskFactors:          schema.RiskFactors,
		Urgency:              schema.Urgency,
		HomeownerExplanation: schema.HomeownerExplanation,
		ContractorAdvice:     schema.ContractorAdvice,
	}, nil
}

// cleanJSONContent strips markdown code fences a chat model sometimes wraps
// its JSON output in.
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") && strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(strings.TrimPrefix(content, "```json"), "```")
	} else if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") {
		content = strings.TrimSuffix(strings.TrimPrefix(content, "```"), "```")
	}
	return strings.TrimSpace(content)
}
