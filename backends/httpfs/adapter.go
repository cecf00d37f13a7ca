// Package httpfs implements a storage provider that talks to a remote REST
// filesystem over HTTP(S). The wire format is the /v1/files API of a CallFS
// style server, extended with /v1/ops for server-side move, copy and rename.
package httpfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebogdum/cloudbox/backends"
	clog "github.com/ebogdum/cloudbox/core/log"
	"github.com/ebogdum/cloudbox/internal/pathutil"
)

const (
	// Kind identifies httpfs configurations
	Kind = "httpfs"
	// TokenType identifies bearer tokens
	TokenType = "httpfs.BearerToken"

	// Response headers describing an entry
	HeaderType  = "X-CallFS-Type"
	HeaderSize  = "X-CallFS-Size"
	HeaderMTime = "X-CallFS-MTime"

	defaultTimeout = 30 * time.Second
	entryCacheTTL  = 10 * time.Second
	entryCacheSize = 1024
)

// Configuration addresses the remote server.
type Configuration struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout"`
	TrustUnsecure     bool          `mapstructure:"trust_unsecure_ssl"`
}

// Kind implements backends.Configuration
func (c *Configuration) Kind() string { return Kind }

// TrustUnsecureSSLConnections implements backends.Configuration
func (c *Configuration) TrustUnsecureSSLConnections() bool { return c.TrustUnsecure }

// Token is a bearer credential
type Token struct {
	Bearer string
}

// TokenType implements backends.AccessToken
func (t *Token) TokenType() string { return TokenType }

// Provider implements backends.Provider against a remote REST filesystem
type Provider struct {
	client  *http.Client
	base    *url.URL
	bearer  string
	limiter *rate.Limiter
	cache   *backends.EntryCache
	logger  *zap.Logger
}

// New creates an unopened httpfs provider
func New(logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{logger: logger}
}

// Open verifies the credentials by stating the remote root
func (p *Provider) Open(ctx context.Context, cfg backends.Configuration, token backends.AccessToken) (backends.AccessToken, error) {
	httpCfg, ok := cfg.(*Configuration)
	if !ok || httpCfg == nil || httpCfg.BaseURL == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "httpfs provider needs a base URL", nil)
	}
	base, err := url.Parse(httpCfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, backends.NewError(backends.CodeInvalidParameters, "invalid base URL "+httpCfg.BaseURL, err)
	}

	bearer := ""
	if token != nil {
		t, ok := token.(*Token)
		if !ok || t == nil {
			return nil, backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("httpfs provider cannot use %T", token), nil)
		}
		bearer = t.Bearer
	}

	timeout := httpCfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if httpCfg.RequestsPerSecond > 0 {
		limit = rate.Limit(httpCfg.RequestsPerSecond)
	}
	burst := httpCfg.Burst
	if burst <= 0 {
		burst = 1
	}

	p.client = backends.NewHTTPClient(httpCfg.TrustUnsecure, timeout)
	p.base = base
	p.bearer = bearer
	p.limiter = rate.NewLimiter(limit, burst)

	if _, err := p.head(ctx, pathutil.Delimiter); err != nil {
		p.client.CloseIdleConnections()
		p.client = nil
		return nil, err
	}
	p.cache = backends.NewEntryCache(entryCacheTTL, entryCacheSize)

	p.logger.Debug("HTTP session opened",
		zap.String("host", base.Host),
		zap.String("bearer", clog.SanitizeSecret(bearer)),
		zap.Bool("trust_unsecure", httpCfg.TrustUnsecure))

	return &Token{Bearer: bearer}, nil
}

// Close releases idle connections of the session transport
func (p *Provider) Close() error {
	if p.client != nil {
		p.client.CloseIdleConnections()
		p.client = nil
	}
	if p.cache != nil {
		p.cache.Close()
		p.cache = nil
	}
	return nil
}

// HTTPClient exposes the session client
func (p *Provider) HTTPClient() *http.Client {
	return p.client
}

// StoreToken implements backends.Provider
func (p *Provider) StoreToken(data map[string]string, token backends.AccessToken) error {
	t, ok := token.(*Token)
	if !ok || t == nil {
		return backends.NewError(backends.CodeInvalidParameters, fmt.Sprintf("httpfs provider cannot store %T", token), nil)
	}
	data["Bearer"] = t.Bearer
	return nil
}

// LoadToken implements backends.Provider
func (p *Provider) LoadToken(data map[string]string) (backends.AccessToken, error) {
	bearer, ok := data["Bearer"]
	if !ok {
		return nil, backends.NewError(backends.CodeUnexpectedPayloadShape, "httpfs token carries no bearer", nil)
	}
	return &Token{Bearer: bearer}, nil
}

func (p *Provider) checkOpen() error {
	if p.client == nil {
		return backends.NewError(backends.CodeOpenedConnectionNeeded, "httpfs provider is not open", nil)
	}
	return nil
}

// endpoint builds the URL of route for a rooted remote path
func (p *Provider) endpoint(route, remote string) *url.URL {
	u := *p.base
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/" + route + pathutil.Normalize(remote)
	u.RawPath = ""
	u.RawQuery = ""
	return &u
}

func (p *Provider) do(ctx context.Context, method string, u *url.URL, body io.Reader, header http.Header) (*http.Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for request slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if p.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+p.bearer)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	p.logger.Debug("Sending request",
		zap.String("method", method),
		clog.Path("path", u.Path))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, backends.NewError(backends.CodeProviderFailure, method+" "+u.Path+" failed", err)
	}
	return resp, nil
}

// statusError maps a non-success response onto the error taxonomy and drains
// its body.
func statusError(resp *http.Response, remote string) error {
	defer resp.Body.Close()

	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	msg := fmt.Sprintf("%s: request failed with status %d", remote, resp.StatusCode)
	if body.Error != "" {
		msg += ": " + body.Error
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return backends.NewError(backends.CodeUnauthorizedAccess, msg, nil)
	case http.StatusNotFound:
		return backends.NewError(backends.CodeFileNotFound, msg, nil)
	case http.StatusConflict:
		return backends.NewError(backends.CodeInvalidFileOrDirectoryName, msg, nil)
	case http.StatusBadRequest:
		return backends.NewError(backends.CodeInvalidParameters, msg, nil)
	default:
		return backends.NewError(backends.CodeProviderFailure, msg, nil)
	}
}

func success(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
