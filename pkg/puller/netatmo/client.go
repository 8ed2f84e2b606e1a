package netatmo

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the vendor API root
const DefaultBaseURL = "https://api.netatmo.com"

const scopeReadStation = "read_station"

// ErrReauthorizationRequired is returned when the refresh token was
// rejected and the user has to authorize the application again
var ErrReauthorizationRequired = errors.New("re-authorization required")

// Client handles Netatmo API communication
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	redirectURI  string
	limiter      *rate.Limiter
	logger       *logrus.Logger

	mu             sync.Mutex
	accessToken    string
	refreshToken   string
	tokenExpiry    time.Time
	state          string
	onTokenRefresh func(accessToken, refreshToken string, expiry time.Time) error
	onTokenInvalid func(state string) error
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// WithBaseURL points the client at another API root
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit caps outgoing requests. The vendor allows 50 requests
// per 10 seconds per user.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Netatmo API client
func NewClient(clientID, clientSecret, redirectURI string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:      DefaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		limiter:      rate.NewLimiter(rate.Limit(5), 10),
		logger:       logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// tokenResponse represents the Netatmo OAuth2 token response
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// errorResponse is the body of a rejected OAuth request
type errorResponse struct {
	Error string `json:"error"`
}

// SetTokens sets the tokens directly (e.g., from configuration)
func (c *Client) SetTokens(accessToken, refreshToken string, expiry time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
	c.refreshToken = refreshToken
	c.tokenExpiry = expiry
}

// Tokens returns the current access token, refresh token and expiry
func (c *Client) Tokens() (string, string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken, c.tokenExpiry
}

// IsTokenValid checks if the current token is still valid
func (c *Client) IsTokenValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken != "" && time.Now().Before(c.tokenExpiry)
}

func (c *Client) SetState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// SetTokenRefreshCallback sets a callback that's called when tokens are refreshed
func (c *Client) SetTokenRefreshCallback(callback func(accessToken, refreshToken string, expiry time.Time) error) {
	c.onTokenRefresh = callback
}

// SetTokenInvalidCallback sets a callback that's called when tokens are invalid
func (c *Client) SetTokenInvalidCallback(callback func(state string) error) {
	c.onTokenInvalid = callback
}

// GetAuthorizationURL returns the URL where the user should authenticate
// together with the state value the callback has to echo
func (c *Client) GetAuthorizationURL() (string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	c.SetState(state)

	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", c.redirectURI)
	params.Set("scope", scopeReadStation)
	params.Set("state", state)

	return c.baseURL + "/oauth2/authorize?" + params.Encode(), state, nil
}

// Login performs the password grant with the user's own credentials
func (c *Client) Login(ctx context.Context, username, password string) error {
	data := url.Values{}
	data.Set("grant_type", "password")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("username", username)
	data.Set("password", password)
	data.Set("scope", scopeReadStation)

	return c.requestToken(ctx, data)
}

// GetAccessTokenFromCode exchanges an authorization code for an access token
func (c *Client) GetAccessTokenFromCode(ctx context.Context, code string, state string) error {
	c.mu.Lock()
	expected := c.state
	c.mu.Unlock()

	if state != expected {
		return fmt.Errorf("state mismatch: expected %s, got %s", expected, state)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("code", code)
	data.Set("redirect_uri", c.redirectURI)
	data.Set("scope", scopeReadStation)

	return c.requestToken(ctx, data)
}

// RefreshAccessToken uses the refresh token to get a new access token
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	if c.refreshToken == "" {
		return fmt.Errorf("no refresh token available: %w", ErrReauthorizationRequired)
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)
	data.Set("refresh_token", c.refreshToken)

	status, body, err := c.post(ctx, "/oauth2/token", data, "")
	if err != nil {
		return fmt.Errorf("failed to refresh access token: %w", err)
	}

	if status != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error == "invalid_grant" {
			if c.onTokenInvalid != nil {
				if err := c.onTokenInvalid(c.state); err != nil {
					return fmt.Errorf("token is invalid or expired but failed to execute token invalid callback: %w", err)
				}
			}
			return fmt.Errorf("refresh token is invalid or expired: %w", ErrReauthorizationRequired)
		}
		return fmt.Errorf("refresh token request failed with status %d: %s", status, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("failed to parse refresh token response: %w", err)
	}

	c.applyToken(tokenResp)
	c.logger.WithField("expiry", c.tokenExpiry.Format(time.RFC3339)).Info("Refreshed access token")

	// Persist the new tokens if callback is set
	if c.onTokenRefresh != nil {
		if err := c.onTokenRefresh(c.accessToken, c.refreshToken, c.tokenExpiry); err != nil {
			return fmt.Errorf("failed to execute token refresh callback: %w", err)
		}
	}

	return nil
}

func (c *Client) requestToken(ctx context.Context, data url.Values) error {
	status, body, err := c.post(ctx, "/oauth2/token", data, "")
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	if status != http.StatusOK {
		return fmt.Errorf("token request failed with status %d: %s", status, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	c.mu.Lock()
	c.applyToken(tokenResp)
	c.mu.Unlock()

	return nil
}

func (c *Client) applyToken(tokenResp tokenResponse) {
	c.accessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		c.refreshToken = tokenResp.RefreshToken
	}
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
}

// ensureValidToken returns a usable access token, refreshing it when it
// expires within 15 minutes
func (c *Client) ensureValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-15*time.Minute)) {
		return c.accessToken, nil
	}

	if err := c.refreshLocked(ctx); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

// apiPost sends an authenticated form request and returns the body of a
// successful response
func (c *Client) apiPost(ctx context.Context, path string, data url.Values) ([]byte, error) {
	token, err := c.ensureValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	status, body, err := c.post(ctx, path, data, token)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, fmt.Errorf("netatmo API returned status %d: %s", status, string(body))
	}

	return body, nil
}

func (c *Client) post(ctx context.Context, path string, data url.Values, token string) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(data.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	c.logger.WithFields(logrus.Fields{
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("Netatmo request")

	return resp.StatusCode, body, nil
}
