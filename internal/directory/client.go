package directory

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL  = "https://graph.microsoft.com/v1.0"
	defaultLoginURL = "https://login.microsoftonline.com"
	defaultScope    = "https://graph.microsoft.com/.default"
	defaultTimeout  = 30 * time.Second

	userSelect = "id,displayName,mail,userPrincipalName,department,jobTitle,employeeId,mobilePhone,accountEnabled"
)

// Config carries the tenant and application credentials for the directory
// API. It is an explicit value object so tests can inject fakes.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// BaseURL and LoginURL default to the public Graph endpoints; tests
	// point them at a local server.
	BaseURL  string
	LoginURL string
	Timeout  time.Duration
}

func (c Config) complete() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.LoginURL == "" {
		c.LoginURL = defaultLoginURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Client talks to the remote directory over HTTP. The bearer token is cached
// in memory and refreshed lazily; only one refresh is in flight at a time.
type Client struct {
	cfg     Config
	http    *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter

	tokenMu sync.Mutex
	token   Token
	now     func() time.Time
}

// NewClient builds a directory client. Rate-limited responses are retried
// with exponential backoff a bounded number of times; every other failure
// surfaces immediately as a typed error.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.complete()

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() == 429
		})

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate exchanges the client credentials for a bearer token, caching
// it until near expiry. Callers normally never invoke this directly; every
// fetch refreshes transparently.
func (c *Client) Authenticate(ctx context.Context) (Token, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.ensureTokenLocked(ctx)
}

func (c *Client) ensureTokenLocked(ctx context.Context) (Token, error) {
	if c.token.Valid(c.now()) {
		return c.token, nil
	}
	if c.cfg.TenantID == "" || c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return Token{}, ErrNoCredentials
	}

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimSuffix(c.cfg.LoginURL, "/"), c.cfg.TenantID)

	var body tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
			"scope":         defaultScope,
		}).
		SetResult(&body).
		Post(tokenURL)
	if err != nil {
		return Token{}, fmt.Errorf("directory: token request: %w", err)
	}
	if !resp.IsSuccess() {
		return Token{}, &AuthError{Status: resp.StatusCode(), Detail: truncate(resp.String(), 200)}
	}
	if body.AccessToken == "" {
		return Token{}, &AuthError{Status: resp.StatusCode(), Detail: "empty access token"}
	}

	c.token = Token{
		AccessToken: body.AccessToken,
		ExpiresAt:   c.now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	c.logger.Debug("directory token refreshed", zap.Time("expires_at", c.token.ExpiresAt))
	return c.token, nil
}

// ListUsers fetches every enabled user, following pagination cursors until
// the collection is exhausted.
func (c *Client) ListUsers(ctx context.Context) ([]RawUser, error) {
	endpoint := c.cfg.BaseURL + "/users?" + url.Values{
		"$select": {userSelect},
		"$filter": {"accountEnabled eq true"},
		"$top":    {"999"},
	}.Encode()

	var users []RawUser
	for endpoint != "" {
		var page userPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		users = append(users, page.Value...)
		endpoint = page.NextLink
	}
	return users, nil
}

// ListDevices fetches the full device collection.
func (c *Client) ListDevices(ctx context.Context) ([]RawDevice, error) {
	endpoint := c.cfg.BaseURL + "/devices?" + url.Values{"$top": {"999"}}.Encode()

	var devices []RawDevice
	for endpoint != "" {
		var page devicePage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		devices = append(devices, page.Value...)
		endpoint = page.NextLink
	}
	return devices, nil
}

// ListUserDevices fetches the devices registered to one user.
func (c *Client) ListUserDevices(ctx context.Context, userExternalID string) ([]RawDevice, error) {
	endpoint := fmt.Sprintf("%s/users/%s/registeredDevices", c.cfg.BaseURL, url.PathEscape(userExternalID))

	var devices []RawDevice
	for endpoint != "" {
		var page devicePage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		devices = append(devices, page.Value...)
		endpoint = page.NextLink
	}
	return devices, nil
}

// ListDeletedUsers queries the recently-deleted user collection.
func (c *Client) ListDeletedUsers(ctx context.Context) ([]RawDeletedUser, error) {
	endpoint := c.cfg.BaseURL + "/directory/deletedItems/microsoft.graph.user"

	var deleted []RawDeletedUser
	for endpoint != "" {
		var page deletedUserPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, err
		}
		deleted = append(deleted, page.Value...)
		endpoint = page.NextLink
	}
	return deleted, nil
}

// FetchUserPhoto retrieves the user's photo bytes. A missing photo is not an
// error; it returns (nil, nil).
func (c *Client) FetchUserPhoto(ctx context.Context, userExternalID string) ([]byte, error) {
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/users/%s/photo/$value", c.cfg.BaseURL, url.PathEscape(userExternalID))
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok.AccessToken).
		SetHeader("Accept", "*/*").
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("directory: fetch photo: %w", err)
	}
	if resp.StatusCode() == 404 {
		return nil, nil
	}
	if !resp.IsSuccess() {
		return nil, &APIError{Status: resp.StatusCode(), Kind: classify(resp.StatusCode(), resp.String()), Body: truncate(resp.String(), 200)}
	}
	return resp.Body(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	tok, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(tok.AccessToken).
		SetResult(out).
		Get(endpoint)
	if err != nil {
		return fmt.Errorf("directory: get %s: %w", endpoint, err)
	}
	if !resp.IsSuccess() {
		apiErr := &APIError{
			Status: resp.StatusCode(),
			Kind:   classify(resp.StatusCode(), resp.String()),
			Body:   truncate(resp.String(), 200),
		}
		c.logger.Warn("directory request failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", apiErr.Status),
			zap.String("kind", string(apiErr.Kind)),
		)
		return apiErr
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
