// Package backend is the HTTP client for the club REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/clubhouse/internal/club"
)

// ErrUnauthorized means the bearer token is invalid or expired (401 or 422)
var ErrUnauthorized = errors.New("backend: token rejected")

// StatusError is returned for any other non-2xx response
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend API error (status %d): %s", e.Code, e.Body)
}

// Client talks to the club REST API
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// NewClient creates a Client rooted at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing backend URL: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type usersResponse struct {
	Users []club.User `json:"users"`
}

// Roster fetches every user on the attendance roster
func (c *Client) Roster(ctx context.Context, token string) ([]club.User, error) {
	var res usersResponse
	if err := c.do(ctx, http.MethodGet, "/attendance/", token, nil, &res); err != nil {
		return nil, err
	}
	return res.Users, nil
}

// CreateProfiles creates placeholder profiles for each email
func (c *Client) CreateProfiles(ctx context.Context, token string, emails []string) ([]club.User, error) {
	body := struct {
		Emails []string `json:"emails"`
	}{Emails: emails}

	var res usersResponse
	if err := c.do(ctx, http.MethodPost, "/profile/", token, body, &res); err != nil {
		return nil, err
	}
	return res.Users, nil
}

// SendPenalties submits absences and tardies for a meeting
func (c *Client) SendPenalties(ctx context.Context, token string, p club.Penalties) error {
	if p.Absent == nil {
		p.Absent = []string{}
	}
	if p.Late == nil {
		p.Late = []string{}
	}
	return c.do(ctx, http.MethodPost, "/attendance/", token, p, nil)
}

// DeleteProfile removes a user from the club
func (c *Client) DeleteProfile(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/profile/"+url.PathEscape(id)+"/", token, nil, nil)
}

// Profile returns the user behind token
func (c *Client) Profile(ctx context.Context, token string) (*club.User, error) {
	var res struct {
		User club.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/profile/", token, nil, &res); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, data club.LoginData) (string, error) {
	var res struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/login/", "", data, &res); err != nil {
		return "", err
	}
	if res.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return res.Token, nil
}

// Requests fetches every reimbursement request visible to token
func (c *Client) Requests(ctx context.Context, token string) (*club.AllRequests, error) {
	var res club.AllRequests
	if err := c.do(ctx, http.MethodGet, "/requests/", token, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateRequest submits a new reimbursement request
func (c *Client) CreateRequest(ctx context.Context, token string, form club.RequestForm) error {
	return c.do(ctx, http.MethodPost, "/requests/", token, form, nil)
}

// UpdateRequest edits an existing request
func (c *Client) UpdateRequest(ctx context.Context, token, id string, form club.RequestForm) error {
	return c.do(ctx, http.MethodPut, "/requests/"+url.PathEscape(id)+"/", token, form, nil)
}

// AddComment appends a comment to a request
func (c *Client) AddComment(ctx context.Context, token, id, message string) error {
	body := struct {
		Message string `json:"message"`
	}{Message: message}
	return c.do(ctx, http.MethodPost, "/requests/"+url.PathEscape(id)+"/comments/", token, body, nil)
}

// do sends one JSON request. The response body is decoded into out only
// after the status has been checked.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("Backend request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnprocessableEntity:
		slog.Info("Backend rejected token", "method", method, "path", path, "status", resp.StatusCode, "request_id", requestID)
		return ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("Backend returned an error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"request_id", requestID,
			"body", string(data),
		)
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
