// Package gateway executes requests against the datum host cluster and
// decodes the response envelope. It owns the application's current-host
// pointer: cluster discovery refreshes it, every other component just
// issues requests.
package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/datumcloud/datum-sync/internal/apperr"
	"github.com/datumcloud/datum-sync/internal/config"
	"github.com/datumcloud/datum-sync/internal/constants"
	"github.com/datumcloud/datum-sync/internal/http"
	"github.com/datumcloud/datum-sync/internal/jsontree"
	"github.com/datumcloud/datum-sync/internal/logging"
	"github.com/datumcloud/datum-sync/internal/models"
)

// secretParams are the parameter names sent base64-obscured as
// secret.<name>=. The server decodes them symmetrically.
var secretParams = map[string]bool{
	"username": true,
	"password": true,
	"authkey":  true,
	"token":    true,
}

// retryLogger adapts the retryablehttp.LeveledLogger interface onto our
// logger. Info/Debug retry chatter is dropped.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Msgf("retry: %s %v", msg, keysAndValues)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Msgf("retry: %s %v", msg, keysAndValues)
}

// Client executes requests against the cluster.
type Client struct {
	httpClient *nethttp.Client
	logger     *logging.Logger

	mu      sync.RWMutex
	current *models.HostRecord // current best host, nil before first auth
	baseURL string             // derived from current, or the entry address
}

// NewClient creates a gateway client. cfg supplies the proxy settings
// and the entry address used before any host record exists.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	httpClient, err := http.ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = constants.GatewayRetryMax
	retryClient.RetryWaitMin = constants.GatewayRetryWaitMin
	retryClient.RetryWaitMax = constants.GatewayRetryWaitMax
	retryClient.Logger = &retryLogger{logger: logger}

	c := &Client{
		httpClient: retryClient.StandardClient(),
		logger:     logger,
	}
	if cfg != nil && cfg.EntryAddr != "" {
		c.baseURL = fmt.Sprintf("http://%s:%d", cfg.EntryAddr, cfg.EntryPort)
	}
	return c, nil
}

// CurrentHost returns the current host record, or nil before first auth.
func (c *Client) CurrentHost() *models.HostRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return nil
	}
	h := *c.current
	return &h
}

// SetCurrentHost updates the current-host pointer. Cluster discovery
// calls this when a fresher address arrives; auth calls it after login.
func (c *Client) SetCurrentHost(host *models.HostRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if host == nil {
		c.current = nil
		return
	}
	h := *host
	c.current = &h
	if u := h.BaseURL(); u != "" {
		c.baseURL = u
	}
}

// BaseURL returns the address requests currently target.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// AuthToken composes the opaque token for authenticated requests. The
// caller never re-derives it, only concatenates.
func AuthToken(hostKey, userKey, token string) string {
	return hostKey + userKey + token
}

// EncodeQuery renders params with secret-parameter encoding applied:
// registered sensitive names are individually base64-encoded and
// renamed secret.<name>.
func EncodeQuery(params url.Values) string {
	encoded := url.Values{}
	for name, vals := range params {
		for _, v := range vals {
			if secretParams[name] {
				encoded.Add("secret."+name, base64.StdEncoding.EncodeToString([]byte(v)))
			} else {
				encoded.Add(name, v)
			}
		}
	}
	return encoded.Encode()
}

// Request issues a GET against path on the current base URL and decodes
// the envelope. A non-zero error.code in the body is an error tagged
// with action, same as a transport failure.
func (c *Client) Request(ctx context.Context, action apperr.Action, path string, params url.Values) (jsontree.Node, error) {
	base := c.BaseURL()
	if base == "" {
		return jsontree.Node{}, apperr.New(action, "no host address configured")
	}
	return c.RequestURL(ctx, action, base, path, params)
}

// RequestURL is Request against an explicit base URL. Login uses it with
// the entry address before any host record exists.
func (c *Client) RequestURL(ctx context.Context, action apperr.Action, base, path string, params url.Values) (jsontree.Node, error) {
	reqURL := strings.TrimSuffix(base, "/") + path
	if query := EncodeQuery(params); query != "" {
		reqURL += "?" + query
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, reqURL, nil)
	if err != nil {
		return jsontree.Node{}, apperr.Wrap(action, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("action", string(action)).Str("path", path).Msg("gateway request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jsontree.Node{}, apperr.Wrap(action, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return jsontree.Node{}, apperr.Wrap(action,
			fmt.Errorf("request failed: status %d: %s", resp.StatusCode, string(body)))
	}

	node, err := jsontree.Decode(resp.Body)
	if err != nil {
		return jsontree.Node{}, apperr.Wrap(action, err)
	}

	// Application-level failure rides inside a 200.
	if errBlock := node.Obj("error"); errBlock.Has("code") {
		if code := errBlock.Int("code", 0); code != 0 {
			return jsontree.Node{}, apperr.Remote(action, code,
				errBlock.Str("msg", ""), errBlock.Str("trace", ""))
		}
	}

	return node, nil
}
