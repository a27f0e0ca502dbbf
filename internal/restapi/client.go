// Package restapi talks to the Cync cloud REST API: credential exchange via
// emailed two-factor codes, access-token refresh, and the device inventory
// the bridge imports.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.gelighting.com"

// corpID identifies the Cync application to the auth endpoints.
const corpID = "1007d2ad150c4000"

// Client is a Cync REST API client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client. An empty baseURL selects production.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "restapi"),
	}
}

// Credentials is the material returned by a successful two-factor login.
// UserID and Authorize feed the TCP session AUTH frame; RefreshToken renews
// the REST access token.
type Credentials struct {
	UserID       uint32 `json:"user_id"`
	Authorize    string `json:"authorize"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expire_in"`
}

// HomeInfo is one home container from the subscription listing.
type HomeInfo struct {
	ID        uint32 `json:"id"`
	ProductID uint32 `json:"product_id"`
	Name      string `json:"name"`
}

// DeviceInfo is one bulb from a home's property listing.
type DeviceInfo struct {
	DeviceID    uint32 `json:"deviceID"`
	SwitchID    uint32 `json:"switchID"`
	DisplayName string `json:"displayName"`
	DeviceType  uint8  `json:"deviceType"`
}

// RequestVerifyCode triggers the two-factor code email.
func (c *Client) RequestVerifyCode(ctx context.Context, email string) error {
	body := map[string]string{
		"corp_id":    corpID,
		"email":      email,
		"local_lang": "en-us",
	}
	return c.postJSON(ctx, "/v2/two_factor/email/verifycode", "", body, nil)
}

// Login exchanges email, password and the emailed code for credentials.
func (c *Client) Login(ctx context.Context, email, password, code string) (*Credentials, error) {
	body := map[string]string{
		"corp_id":    corpID,
		"email":      email,
		"password":   password,
		"two_factor": code,
		"resource":   "cync-go-home",
	}
	var creds Credentials
	if err := c.postJSON(ctx, "/v2/user_auth/two_factor", "", body, &creds); err != nil {
		return nil, err
	}
	if creds.UserID == 0 || creds.Authorize == "" {
		return nil, fmt.Errorf("restapi: login response missing credentials")
	}
	return &creds, nil
}

// RefreshAccessToken exchanges a refresh token for a fresh access token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.postJSON(ctx, "/v2/user/token/refresh", "", body, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("restapi: refresh response missing access token")
	}
	return resp.AccessToken, nil
}

// Homes lists the user's home containers.
func (c *Client) Homes(ctx context.Context, userID uint32, accessToken string) ([]HomeInfo, error) {
	path := fmt.Sprintf("/v2/user/%d/subscribe/devices", userID)
	var homes []HomeInfo
	if err := c.getJSON(ctx, path, accessToken, &homes); err != nil {
		return nil, err
	}
	return homes, nil
}

// HomeDevices lists the bulbs of one home.
func (c *Client) HomeDevices(ctx context.Context, home HomeInfo, accessToken string) ([]DeviceInfo, error) {
	path := fmt.Sprintf("/v2/product/%d/device/%d/property", home.ProductID, home.ID)
	var resp struct {
		BulbsArray []DeviceInfo `json:"bulbsArray"`
	}
	if err := c.getJSON(ctx, path, accessToken, &resp); err != nil {
		return nil, err
	}
	return resp.BulbsArray, nil
}

func (c *Client) postJSON(ctx context.Context, path, accessToken string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("restapi: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("restapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Access-Token", accessToken)
	}
	return c.do(req, path, out)
}

func (c *Client) getJSON(ctx context.Context, path, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("restapi: build request: %w", err)
	}
	req.Header.Set("Access-Token", accessToken)
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("restapi: %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("restapi: %s %s: status %d: %s", req.Method, path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("restapi: %s %s: decode response: %w", req.Method, path, err)
	}
	return nil
}
