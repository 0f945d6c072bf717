package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FalClient drives image generation through the fal.ai queue API. Submitting
// returns a request id; results are fetched once the status endpoint reports
// COMPLETED.
type FalClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client

	costPerCall float64
}

type falSubmitRequest struct {
	Prompt    string `json:"prompt"`
	ImageSize string `json:"image_size,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

type falSubmitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type falStatusResponse struct {
	Status string `json:"status"`
}

type falResultPayload struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

func NewFalClient(baseURL, apiKey, model string) *FalClient {
	if model == "" {
		model = "fal-ai/flux/dev"
	}
	return &FalClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		costPerCall: 0.025,
	}
}

func (c *FalClient) Name() string {
	return ProviderFal
}

func (c *FalClient) Generate(ctx context.Context, input GenerateInput) (*GenerateOutput, error) {
	reqBody := falSubmitRequest{
		Prompt:    input.Prompt,
		ImageSize: falImageSize(input.AspectRatio),
		ImageURL:  input.ReferenceURL,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/" + c.model
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Key "+c.apiKey)
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

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("failed to submit generation: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result falSubmitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.RequestID == "" {
		return nil, fmt.Errorf("request_id is empty in response, body: %s", string(body))
	}

	return &GenerateOutput{
		TaskID:   result.RequestID,
		RealCost: c.costPerCall,
	}, nil
}

func (c *FalClient) CheckStatus(ctx context.Context, taskID string) (*TaskCheck, error) {
	url := fmt.Sprintf("%s/%s/requests/%s/status", c.baseURL, c.model, taskID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to check status: status %d, body: %s", resp.StatusCode, string(body))
	}

	var status falStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	check := &TaskCheck{RawStatus: status.Status}

	// The queue keeps the result behind a separate endpoint; fetch it along
	// with the terminal status so the poller's payload is self-contained.
	if status.Status == "COMPLETED" {
		payload, err := c.fetchResult(ctx, taskID)
		if err != nil {
			return nil, err
		}
		check.Payload = payload
	}

	return check, nil
}

func (c *FalClient) fetchResult(ctx context.Context, taskID string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/%s/requests/%s", c.baseURL, c.model, taskID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Key "+c.apiKey)

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
		return nil, fmt.Errorf("failed to fetch result: status %d, body: %s", resp.StatusCode, string(body))
	}

	return json.RawMessage(body), nil
}

func (c *FalClient) ExtractResult(payload json.RawMessage) (string, error) {
	var result falResultPayload
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", fmt.Errorf("failed to decode result payload: %w", err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return "", fmt.Errorf("no image url in result payload")
	}
	return result.Images[0].URL, nil
}

func falImageSize(aspectRatio string) string {
	switch aspectRatio {
	case "16:9":
		return "landscape_16_9"
	case "9:16":
		return "portrait_16_9"
	case "4:3":
		return "landscape_4_3"
	case "3:4":
		return "portrait_4_3"
	default:
		return "square_hd"
	}
}
