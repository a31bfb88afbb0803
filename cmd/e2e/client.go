package main

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

// Client calls the taskhub REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// envelope mirrors the API response body. Data is decoded by the caller.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
}

// APIError is returned for responses with an unexpected status.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Do sends a JSON request and checks the status. When out is non-nil the
// envelope's data member is decoded into it.
func (c *Client) Do(ctx context.Context, method, path, token string, body any, wantStatus int, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if resp.StatusCode != wantStatus {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return nil
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.Do(ctx, http.MethodGet, "/health", "", nil, http.StatusOK, nil)
}

// Login returns a token for the account.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.Do(ctx, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("login %s: empty token", email)
	}
	return out.Token, nil
}

// ID-bearing records returned by the API. Only the fields the scenarios
// check are decoded.
type (
	userRecord struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		RoleName string `json:"roleName"`
	}
	projectRecord struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	taskRecord struct {
		ID          string     `json:"id"`
		Title       string     `json:"title"`
		Status      string     `json:"status"`
		CompletedAt *time.Time `json:"completedAt"`
		AIGenerated bool       `json:"aiGenerated"`
	}
	stateRecord struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		IsFinal bool   `json:"isFinal"`
	}
	categoryRecord struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
)

// FirstCategory returns any active category ID.
func (c *Client) FirstCategory(ctx context.Context) (string, error) {
	var cats []categoryRecord
	if err := c.Do(ctx, http.MethodGet, "/api/categories", "", nil, http.StatusOK, &cats); err != nil {
		return "", err
	}
	if len(cats) == 0 {
		return "", fmt.Errorf("no categories; run taskhub seed")
	}
	return cats[0].ID, nil
}

// TaskStates returns the task states.
func (c *Client) TaskStates(ctx context.Context) ([]stateRecord, error) {
	var states []stateRecord
	err := c.Do(ctx, http.MethodGet, "/api/states/tasks", "", nil, http.StatusOK, &states)
	return states, err
}
