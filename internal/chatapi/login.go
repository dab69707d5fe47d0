package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/soyeahso/parley/internal/version"
)

const loginResource = "user:login"

// LoginError is a login rejected by the server.
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string {
	if e.Message == "" {
		return "login failed"
	}
	return "login failed: " + e.Message
}

// Session is the result of a successful login.
type Session struct {
	Token  string
	UserID string
}

type loginDevice struct {
	Name    string `json:"name"`
	OS      string `json:"os"`
	Version string `json:"version"`
}

type loginData struct {
	Email         string      `json:"email"`
	Password      string      `json:"password"`
	RememberMe    bool        `json:"remember_me"`
	LogoutSimilar bool        `json:"logout_similar"`
	Device        loginDevice `json:"device"`
}

type loginRequest struct {
	Resource string            `json:"resource"`
	Data     loginData         `json:"data"`
	Metadata map[string]string `json:"metadata"`
}

type loginResponse struct {
	Result *struct {
		AuthToken string `json:"auth_token"`
		User      struct {
			ID string `json:"_id"`
		} `json:"user"`
	} `json:"result"`
	Error *struct {
		Msg string `json:"msg"`
	} `json:"error"`
}

// Login exchanges email and password for a token and user id. It is sent
// without credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := loginRequest{
		Resource: loginResource,
		Data: loginData{
			Email:         email,
			Password:      password,
			RememberMe:    true,
			LogoutSimilar: true,
			Device:        loginDevice{Name: c.device, OS: runtime.GOOS, Version: version.Version},
		},
		Metadata: map[string]string{"service": c.service},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}

	var lr loginResponse
	if err := json.Unmarshal(respBody, &lr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if lr.Error != nil {
		return nil, &LoginError{Message: lr.Error.Msg}
	}
	if lr.Result == nil || lr.Result.AuthToken == "" || lr.Result.User.ID == "" {
		return nil, errors.New("login response missing token or user id")
	}

	c.log.Info().Str("user", lr.Result.User.ID).Msg("logged in")
	return &Session{Token: lr.Result.AuthToken, UserID: lr.Result.User.ID}, nil
}
