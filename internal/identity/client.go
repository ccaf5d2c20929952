// internal/identity/client.go
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/errors"
	commonhttp "engagement-workers/internal/common/http"
)

// Client talks to Keycloak for token introspection and account lookups.
type Client struct {
	baseURL      string
	realm        string
	clientID     string
	clientSecret string
	httpClient   *commonhttp.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Account represents a user account in Keycloak.
type Account struct {
	ID            string `json:"id,omitempty"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Username      string `json:"username"`
	Enabled       bool   `json:"enabled"`
	EmailVerified bool   `json:"emailVerified"`
}

// TokenResponse holds the response from Keycloak's token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// TokenInfo holds the information returned by the token introspection endpoint.
type TokenInfo struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	Email     string   `json:"email,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Exp       int64    `json:"exp,omitempty"` // Expiration timestamp (seconds since epoch)
	Iat       int64    `json:"iat,omitempty"` // Issued at timestamp (seconds since epoch)
	Sub       string   `json:"sub,omitempty"` // Subject (user ID)
	Aud       []string `json:"aud,omitempty"` // Audience
	Iss       string   `json:"iss,omitempty"` // Issuer
}

// NewClient creates a Keycloak client from the identity configuration.
func NewClient(cfg config.IdentityConfig) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.Keycloak.URL, "/"),
		realm:        cfg.Keycloak.Realm,
		clientID:     cfg.Keycloak.ClientID,
		clientSecret: cfg.Keycloak.ClientSecret,
		httpClient:   commonhttp.NewClient(30 * time.Second),
	}
}

// getAccessToken fetches a service-account token using the client credentials
// flow. The token is cached until expiry; handlers run concurrently, so the
// cache is guarded.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokenExpiry.After(time.Now()) && c.accessToken != "" {
		return c.accessToken, nil
	}

	tokenURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)

	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResp TokenResponse
	if err := c.httpClient.DoJSON(ctx, req, &tokenResp); err != nil {
		return "", fmt.Errorf("keycloak token request failed: %w", err)
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	return c.accessToken, nil
}

// IntrospectToken checks whether an access token is valid and active.
// Inactive tokens are a terminal condition; provider outages are retryable.
func (c *Client) IntrospectToken(ctx context.Context, token string) (*TokenInfo, error) {
	introspectURL := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", c.baseURL, c.realm)

	data := url.Values{}
	data.Set("token", token)
	data.Set("token_type_hint", "access_token")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, introspectURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, &errors.StandardError{
			Code:      "HTTP_REQUEST_ERROR",
			Message:   "Failed to create introspection request",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewIdentityResolutionFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		intErr := fmt.Errorf("introspection failed (status %d): %s", resp.StatusCode, string(body))
		if commonhttp.IsTransientStatus(resp.StatusCode) {
			return nil, errors.NewIdentityResolutionFailedError(intErr)
		}
		return nil, &errors.StandardError{
			Code:      "KEYCLOAK_API_ERROR",
			Message:   "Identity provider rejected the request",
			Details:   intErr.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}

	var tokenInfo TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&tokenInfo); err != nil {
		return nil, errors.NewIdentityResolutionFailedError(fmt.Errorf("decode introspection response: %w", err))
	}

	if !tokenInfo.Active {
		return nil, &errors.StandardError{
			Code:      "TOKEN_INVALID",
			Message:   "Your session is no longer valid. Please sign in again.",
			Details:   "The provided access token is expired, revoked, or malformed.",
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}

	return &tokenInfo, nil
}

// GetAccount retrieves a Keycloak account by its unique ID via the admin API.
func (c *Client) GetAccount(ctx context.Context, userID string) (*Account, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, errors.NewIdentityResolutionFailedError(err)
	}

	accountURL := fmt.Sprintf("%s/admin/realms/%s/users/%s", c.baseURL, c.realm, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, accountURL, nil)
	if err != nil {
		return nil, errors.NewIdentityResolutionFailedError(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewIdentityResolutionFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.NewNotFoundError("account", userID)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("account lookup failed (status %d): %s", resp.StatusCode, string(body))
		if commonhttp.IsTransientStatus(resp.StatusCode) {
			return nil, errors.NewIdentityResolutionFailedError(apiErr)
		}
		return nil, &errors.StandardError{
			Code:      "KEYCLOAK_API_ERROR",
			Message:   "Identity provider rejected the request",
			Details:   apiErr.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, errors.NewIdentityResolutionFailedError(fmt.Errorf("decode account: %w", err))
	}

	return &account, nil
}
