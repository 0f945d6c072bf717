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

// KlingClient generates video clips through the Kling task API. Submissions
// return a task id that moves submitted -> processing -> succeed/failed.
type KlingClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	costPerCall float64
}

type klingSubmitRequest struct {
	ModelName   string `json:"model_name"`
	Prompt      string `json:"prompt"`
	Image       string `json:"image,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

type klingTaskResponse struct {
	Code int `json:"code"`
	Data struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		TaskResult struct {
			Videos []struct {
				URL string `json:"url"`
			} `json:"videos"`
		} `json:"task_result"`
	} `json:"data"`
	Message string `json:"message"`
}

func NewKlingClient(baseURL, apiKey string) *KlingClient {
	return &KlingClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		costPerCall: 0.35,
	}
}

func (c *KlingClient) Name() string {
	return ProviderKling
}

func (c *KlingClient) Generate(ctx context.Context, input GenerateInput) (*GenerateOutput, error) {
	reqBody := klingSubmitRequest{
		ModelName:   "kling-v1-6",
		Prompt:      input.Prompt,
		Image:       input.ReferenceURL,
		AspectRatio: input.AspectRatio,
		Mode:        "std",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := "/videos/text2video"
	if input.ReferenceURL != "" {
		endpoint = "/videos/image2video"
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+endpoint, bytes.NewBuffer(jsonData))
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
		return nil, fmt.Errorf("failed to submit generation: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result klingTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Data.TaskID == "" {
		return nil, fmt.Errorf("task_id is empty in response, body: %s", string(body))
	}

	return &GenerateOutput{
		TaskID:   result.Data.TaskID,
		RealCost: c.costPerCall,
	}, nil
}

func (c *KlingClient) CheckStatus(ctx context.Context, taskID string) (*TaskCheck, error) {
	url := c.baseURL + "/videos/generations/" + taskID
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
		return nil, fmt.Errorf("failed to check status: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result klingTaskResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &TaskCheck{
		RawStatus: result.Data.TaskStatus,
		Payload:   json.RawMessage(body),
	}, nil
}

func (c *KlingClient) ExtractResult(payload json.RawMessage) (string, error) {
	var result klingTaskResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return "", fmt.Errorf("failed to decode result payload: %w", err)
	}
	if len(result.Data.TaskResult.Videos) == 0 || result.Data.TaskResult.Videos[0].URL == "" {
		return "", fmt.Errorf("no video url in result payload")
	}
	return result.Data.TaskResult.Videos[0].URL, nil
}
