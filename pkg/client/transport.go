package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// httpTransport posts JSON to the license server and separates server
// refusals (APIError) from connectivity failures (NetworkError).
type httpTransport struct {
	baseURL string
	client  *http.Client
}

func newTransport(baseURL string, client *http.Client) *httpTransport {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &httpTransport{baseURL: baseURL, client: client}
}

func (t *httpTransport) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
			return &APIError{Code: "INTERNAL_ERROR", Message: resp.Status, Status: resp.StatusCode}
		}
		return &APIError{
			Code:    envelope.Error.Code,
			Message: envelope.Error.Message,
			Status:  resp.StatusCode,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
