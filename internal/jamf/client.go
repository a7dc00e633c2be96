// Package jamf is a minimal Jamf Pro API client covering token exchange, computer
// lookup by serial number and the management framework redeploy command.
package jamf

import (
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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	tokenPath      = "/api/oauth/token"
	invalidatePath = "/api/v1/auth/invalidate-token"
	computerPath   = "/JSSResource/computers/serialnumber/"
	redeployPath   = "/api/v1/jamf-management-framework/redeploy/"

	// DefaultUserAgent is sent when ClientConfig.UserAgent is empty
	DefaultUserAgent = "jamf-redeploy"

	maxBodySize = 1 << 20
)

// Client talks to a Jamf Pro server. The server URL and token are passed per call
// so one client can serve any number of servers.
type Client struct {
	httpClient *http.Client
	userAgent  string
	retryer    *Retryer
	logger     *slog.Logger
}

// ClientConfig configures the Jamf client
type ClientConfig struct {
	Timeout     time.Duration
	UserAgent   string
	RetryConfig RetryConfig
	// HTTPClient overrides the default client; Timeout is ignored when set
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RedeployResponse is the body Jamf Pro returns when it accepts a redeploy
type RedeployResponse struct {
	DeviceID    string `json:"deviceId"`
	CommandUUID string `json:"commandUuid"`
}

type computerResponse struct {
	Computer struct {
		General struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		} `json:"general"`
	} `json:"computer"`
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// NewClient creates a new Jamf client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = DefaultRetryConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		userAgent:  cfg.UserAgent,
		retryer:    NewRetryer(cfg.RetryConfig, cfg.Logger),
		logger:     cfg.Logger,
	}, nil
}

// Authenticate exchanges API client credentials for an access token using the
// OAuth client-credentials grant.
func (c *Client) Authenticate(ctx context.Context, baseURL, clientID, clientSecret string) (string, error) {
	tokenURL := endpoint(baseURL, tokenPath)
	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	var tok *oauth2.Token
	err := c.retryer.Do(ctx, "authenticate", func(ctx context.Context) error {
		var err error
		tok, err = conf.Token(ctx)
		return wrapTokenError(err, tokenURL)
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("Obtained Jamf Pro access token",
		"base_url", baseURL,
		"expires_at", tok.Expiry)
	return tok.AccessToken, nil
}

func wrapTokenError(err error, tokenURL string) error {
	if err == nil {
		return nil
	}
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		apiErr := newStatusError(http.MethodPost, tokenURL, rErr.Response.StatusCode, rErr.Response.Header, rErr.Body)
		if apiErr.Err == nil {
			apiErr.Err = err
		}
		return apiErr
	}
	return wrapTransportError(err, http.MethodPost, tokenURL)
}

// ResolveComputer looks up the Jamf Pro computer ID for a serial number.
// A non-200 status is returned as-is with a nil error.
func (c *Client) ResolveComputer(ctx context.Context, baseURL, token, serial string) (string, int, error) {
	u := endpoint(baseURL, computerPath+url.PathEscape(serial))

	resp, err := c.do(ctx, "resolve_computer", http.MethodGet, u, token)
	if err != nil {
		return "", 0, err
	}
	if resp.status != http.StatusOK {
		c.logger.Debug("Computer lookup returned non-success status",
			"serial", serial,
			"status", resp.status)
		return "", resp.status, nil
	}

	var cr computerResponse
	if err := json.Unmarshal(resp.body, &cr); err != nil {
		return "", resp.status, fmt.Errorf("failed to decode computer response: %w", err)
	}

	id := cr.Computer.General.ID.String()
	if id == "0" {
		id = ""
	}
	return id, resp.status, nil
}

// RedeployFramework asks Jamf Pro to redeploy the management framework to a computer.
// A 202 status means the command was queued.
func (c *Client) RedeployFramework(ctx context.Context, baseURL, token, computerID string) (int, error) {
	u := endpoint(baseURL, redeployPath+url.PathEscape(computerID))

	resp, err := c.do(ctx, "redeploy_framework", http.MethodPost, u, token)
	if err != nil {
		return 0, err
	}

	if resp.status == http.StatusAccepted {
		var rr RedeployResponse
		if err := json.Unmarshal(resp.body, &rr); err == nil {
			c.logger.Debug("Redeploy command queued",
				"computer_id", computerID,
				"command_uuid", rr.CommandUUID)
		}
	} else {
		c.logger.Debug("Redeploy returned non-success status",
			"computer_id", computerID,
			"status", resp.status,
			"body", truncate(string(resp.body), 200))
	}
	return resp.status, nil
}

// InvalidateToken revokes an access token
func (c *Client) InvalidateToken(ctx context.Context, baseURL, token string) error {
	u := endpoint(baseURL, invalidatePath)

	resp, err := c.do(ctx, "invalidate_token", http.MethodPost, u, token)
	if err != nil {
		return err
	}
	if resp.status/100 != 2 {
		return newStatusError(http.MethodPost, u, resp.status, resp.header, resp.body)
	}
	return nil
}

// do sends an authenticated request through the retryer. Retryable statuses are
// retried; once attempts run out the last response is returned without error.
func (c *Client) do(ctx context.Context, operation, method, u, token string) (*response, error) {
	var resp *response
	err := c.retryer.Do(ctx, operation, func(ctx context.Context) error {
		resp = nil
		r, err := c.send(ctx, method, u, token)
		if err != nil {
			return err
		}
		resp = r
		if isRetryableStatus(r.status) {
			return newStatusError(method, u, r.status, r.header, r.body)
		}
		return nil
	})
	if err != nil && resp != nil {
		return resp, nil
	}
	return resp, err
}

func (c *Client) send(ctx context.Context, method, u, token string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(req)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(err, method, u)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, wrapTransportError(fmt.Errorf("failed to read response body: %w", err), method, u)
	}

	return &response{status: res.StatusCode, header: res.Header, body: body}, nil
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
