package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type OpenAI struct {
	baseURL         string
	maxOutputTokens int
	httpClient      *http.Client
}

func NewOpenAI(httpClient *http.Client, baseURL string, maxOutputTokens int) *OpenAI {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAI{
		baseURL:         strings.TrimRight(baseURL, "/"),
		maxOutputTokens: maxOutputTokens,
		httpClient:      httpClient,
	}
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return "", errors.New("missing AI api key")
	}
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("missing model")
	}
	input, err := json.Marshal(req.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	payload := map[string]any{
		"model":        req.Model,
		"instructions": req.Instructions,
		"input": []map[string]any{{
			"role": "user",
			"content": []map[string]any{{
				"type": "input_text",
				"text": string(input),
			}},
		}},
	}
	if req.Schema != nil {
		payload["text"] = map[string]any{
			"format": map[string]any{
				"type":   "json_schema",
				"name":   req.Schema.Name,
				"strict": true,
				"schema": req.Schema.Definition,
			},
		}
	}
	if c.maxOutputTokens > 0 {
		payload["max_output_tokens"] = c.maxOutputTokens
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	var errEnv struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(respBody, &errEnv) == nil && errEnv.Error != nil && strings.TrimSpace(errEnv.Error.Message) != "" {
		return "", fmt.Errorf("openai error: %s", errEnv.Error.Message)
	}
	return string(respBody), nil
}
