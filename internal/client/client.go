// Package client talks to a running cvrag server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cvrag/internal/domain"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Detail)
}

// Client is a thin JSON client for the chat API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

func (c *Client) Chat(ctx context.Context, message, sessionID string) (*domain.ChatResponse, error) {
	var out domain.ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", domain.ChatRequest{Message: message, SessionID: sessionID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SampleQuestions(ctx context.Context) ([]string, error) {
	var out struct {
		SampleQuestions []string `json:"sample_questions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sample-questions", nil, &out); err != nil {
		return nil, err
	}
	return out.SampleQuestions, nil
}

// ResetSession reports whether the server knew the session.
func (c *Client) ResetSession(ctx context.Context, sessionID string) (bool, error) {
	var out struct {
		Existed bool `json:"existed"`
	}
	err := c.do(ctx, http.MethodPost, "/reset-session?session_id="+url.QueryEscape(sessionID), nil, &out)
	return out.Existed, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Detail: e.Detail}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
