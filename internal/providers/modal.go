package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ModalClient calls the self-hosted Qwen-Image Modal endpoint. Generation is
// synchronous: the endpoint holds the connection and returns the image
// inline as base64.
type ModalClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	// Flat H100-seconds estimate per call, used for real-cost accounting
	// since the endpoint does not report spend.
	costPerCall float64
}

type modalGenerateRequest struct {
	Prompt            string  `json:"prompt"`
	AspectRatio       string  `json:"aspect_ratio,omitempty"`
	Resolution        string  `json:"resolution,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale,omitempty"`
	ImageSource       string  `json:"image_source,omitempty"`
}

type modalGenerateResponse struct {
	Image  string `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func NewModalClient(endpoint, apiKey string) *ModalClient {
	return &ModalClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		costPerCall: 0.04,
	}
}

func (c *ModalClient) Name() string {
	return ProviderModal
}

func (c *ModalClient) Generate(ctx context.Context, input GenerateInput) (*GenerateOutput, error) {
	reqBody := modalGenerateRequest{
		Prompt:            input.Prompt,
		AspectRatio:       input.AspectRatio,
		Resolution:        input.Resolution,
		NumInferenceSteps: 50,
		GuidanceScale:     4.0,
		ImageSource:       input.ReferenceURL,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result modalGenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Image == "" {
		return nil, fmt.Errorf("image is empty in response")
	}

	imageData, err := base64.StdEncoding.DecodeString(result.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}

	return &GenerateOutput{
		ImageData: imageData,
		RealCost:  c.costPerCall,
	}, nil
}

// CheckStatus is never reachable for the synchronous Modal endpoint.
func (c *ModalClient) CheckStatus(ctx context.Context, taskID string) (*TaskCheck, error) {
	return nil, fmt.Errorf("modal generation is synchronous, no task %q to check", taskID)
}

func (c *ModalClient) ExtractResult(payload json.RawMessage) (string, error) {
	return "", fmt.Errorf("modal generation returns results inline")
}
