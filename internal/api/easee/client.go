package easee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a stateless Easee cloud API client. It holds no token; every
// authenticated call takes the bearer token from the caller.
type Client struct {
	httpClient *http.Client
	apiHost    string
}

// NewClient creates an Easee API client with a bounded request timeout.
func NewClient(apiHost string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiHost: apiHost,
	}
}

// Login exchanges account credentials for a token triple.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	payload := map[string]string{
		"userName": username,
		"password": password,
	}

	resp, err := c.postJSON(ctx, "/accounts/token", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: login status=%d", ErrLoginFailed, resp.StatusCode)
	}

	return decodeTokenResponse(resp.Body)
}

// Refresh exchanges the current token pair for a fresh triple.
func (c *Client) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	payload := map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	}

	resp, err := c.postJSON(ctx, "/accounts/refresh_token", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: refresh status=%d", ErrLoginFailed, resp.StatusCode)
	}

	return decodeTokenResponse(resp.Body)
}

// ListChargers returns the account's chargers in the order the API lists them.
func (c *Client) ListChargers(ctx context.Context, token string) ([]Charger, error) {
	resp, err := c.getBearer(ctx, "/chargers", token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: list chargers status=%d", err, resp.StatusCode)
	}

	var chargers []Charger
	if err := json.NewDecoder(resp.Body).Decode(&chargers); err != nil {
		return nil, fmt.Errorf("%w: decode charger list: %v", ErrInvalidResponse, err)
	}
	for _, ch := range chargers {
		if ch.ID == "" {
			return nil, fmt.Errorf("%w: charger entry without id", ErrInvalidResponse)
		}
	}

	return chargers, nil
}

// GetChargerState fetches one charger's current observation.
func (c *Client) GetChargerState(ctx context.Context, token, chargerID string) (*ChargerObservation, error) {
	resp, err := c.getBearer(ctx, "/chargers/"+chargerID+"/state", token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: charger %s state status=%d", err, chargerID, resp.StatusCode)
	}

	var obs ChargerObservation
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		return nil, fmt.Errorf("%w: decode charger state: %v", ErrInvalidResponse, err)
	}
	if obs.TotalPower == nil || obs.SessionEnergy == nil || obs.EnergyPerHour == nil {
		return nil, fmt.Errorf("%w: charger %s state missing fields", ErrInvalidResponse, chargerID)
	}

	return &obs, nil
}

// classifyStatus maps a non-2xx status of an authenticated call to an error
// kind. 429 is throttling, everything else is treated as a credential problem.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUnauthorized
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiHost+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %v", ErrNetworkFailure, path, err)
	}
	return resp, nil
}

func (c *Client) getBearer(ctx context.Context, path, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiHost+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrNetworkFailure, path, err)
	}
	return resp, nil
}

func decodeTokenResponse(r io.Reader) (*TokenResponse, error) {
	var tr TokenResponse
	if err := json.NewDecoder(r).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", ErrInvalidResponse, err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" || tr.ExpiresIn <= 0 {
		return nil, fmt.Errorf("%w: token response missing fields", ErrInvalidResponse)
	}
	return &tr, nil
}
