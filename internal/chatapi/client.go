// Package chatapi is the HTTP client for the remote assistant API: chat,
// history, login and report download.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/parley/internal/chats"
	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/logging"
	"github.com/soyeahso/parley/internal/version"
)

// ErrUnauthorized is returned when the API answers 401.
var ErrUnauthorized = errors.New("unauthorized")

// ErrResponseTooLarge is returned when a JSON response exceeds the
// configured size limit.
var ErrResponseTooLarge = errors.New("response too large")

const (
	defaultMaxResponseBytes = 10 << 20
	errorBodyBytes          = 4096
)

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Body)
}

// CredentialSource supplies the token and user id sent with every request.
type CredentialSource interface {
	Credentials() (token, userID string)
}

// Config holds the client endpoints.
type Config struct {
	BaseURL string
	// AuthURL receives login requests. Empty means BaseURL.
	AuthURL string
	// Service is reported in the login metadata.
	Service string
	// Device names this client in the login payload.
	Device  string
	Timeout time.Duration
	// MaxResponseBytes bounds JSON response bodies. Zero means 10 MiB.
	MaxResponseBytes int64
}

// Client talks to the assistant API.
type Client struct {
	baseURL string
	authURL string
	service string
	device  string
	creds   CredentialSource
	client  *http.Client
	maxBody int64
	log     *logging.Logger
}

// New creates a client. creds may be nil for login-only use.
func New(cfg Config, creds CredentialSource, log *logging.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	authURL := cfg.AuthURL
	if authURL == "" {
		authURL = baseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	device := cfg.Device
	if device == "" {
		device = "parley"
	}
	maxBody := cfg.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = defaultMaxResponseBytes
	}
	return &Client{
		baseURL: baseURL,
		authURL: authURL,
		service: cfg.Service,
		device:  device,
		creds:   creds,
		client:  &http.Client{Timeout: timeout},
		maxBody: maxBody,
		log:     log.Sub("chatapi"),
	}
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string                  `json:"session_id"`
	Message   string                  `json:"message"`
	Agent     string                  `json:"agent"`
	Intent    string                  `json:"intent"`
	ToolCalls []domain.ToolCallResult `json:"tool_calls"`
}

type historyResponse struct {
	History []json.RawMessage `json:"history"`
	UserID  string            `json:"user_id"`
}

// Send posts a user message for a session and returns the assistant reply.
func (c *Client) Send(ctx context.Context, sessionID, text string) (*chats.SendResult, error) {
	var resp chatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", chatRequest{SessionID: sessionID, Message: text}, &resp); err != nil {
		return nil, fmt.Errorf("posting chat: %w", err)
	}
	return &chats.SendResult{
		Message:   resp.Message,
		Agent:     resp.Agent,
		Intent:    resp.Intent,
		ToolCalls: resp.ToolCalls,
	}, nil
}

// FetchHistory returns the raw history records for the signed-in user.
func (c *Client) FetchHistory(ctx context.Context) ([]json.RawMessage, error) {
	var resp historyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/history", nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	c.log.Debug().Int("records", len(resp.History)).Msg("history fetched")
	return resp.History, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	resp, err := c.do(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := c.readBody(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// do sends an authenticated request and maps error statuses. On success the
// caller owns the response body.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		token, userID := c.creds.Credentials()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if userID != "" {
			req.Header.Set("userid", userID)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.log.Debug().
		Str("method", method).
		Str("url", redact(rawURL)).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api request")

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyBytes))
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}

// readBody reads at most maxBody bytes and fails rather than truncate.
func (c *Client) readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.maxBody)
	}
	return data, nil
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}
