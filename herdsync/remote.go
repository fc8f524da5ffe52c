// Copyright 2025 Highlander Farm
// SPDX-License-Identifier: Apache-2.0

package herdsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// TokenFunc supplies the bearer credential for one request. Token lifecycle
// (refresh, storage) belongs to the application shell.
type TokenFunc func(ctx context.Context) (string, error)

// RemoteClient is a thin wrapper over the remote HTTP API. It normalizes
// server error bodies into APIError and converts 401 responses into session
// invalidation.
type RemoteClient struct {
	BaseURL string
	HTTP    *http.Client
	Token   TokenFunc

	// OnUnauthorized is invoked once per 401 response, before ErrUnauthorized
	// is returned. The shell typically forces a logout here.
	OnUnauthorized func()

	logger *slog.Logger
}

// NewRemoteClient creates a client for the API rooted at baseURL.
func NewRemoteClient(baseURL string, token TokenFunc) *RemoteClient {
	return &RemoteClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Token:   token,
		logger:  slog.Default(),
	}
}

// do issues one authenticated JSON request and decodes the response into out
// (which may be nil for empty responses).
func (c *RemoteClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		if c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		c.logger.Debug("request rejected", "method", method, "path", path, "status", resp.StatusCode)
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeAPIError flattens the server's error body. The remote speaks the
// Django REST dialect: either {"detail": "..."} or a field -> messages map.
func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil || len(payload) == 0 {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	if detail, ok := payload["detail"]; ok {
		var msg string
		if json.Unmarshal(detail, &msg) == nil {
			apiErr.Message = msg
			return apiErr
		}
	}

	fields := make([]string, 0, len(payload))
	for field := range payload {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		var messages []string
		if json.Unmarshal(payload[field], &messages) != nil {
			var single string
			if json.Unmarshal(payload[field], &single) != nil {
				continue
			}
			messages = []string{single}
		}
		joined := strings.Join(messages, ", ")
		if field == "non_field_errors" {
			parts = append(parts, joined)
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", strings.ReplaceAll(field, "_", " "), joined))
		}
	}
	apiErr.Message = strings.Join(parts, " ")
	return apiErr
}
