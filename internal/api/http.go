package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

const requestIDHeader = "X-Request-Id"

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	// Routes maps recognized path prefixes (e.g. "/devops") to absolute
	// base URLs. The longest matching prefix wins.
	Routes map[string]string

	// Token is the bearer credential attached to every call.
	Token string

	// Timeout is the default per-request timeout. Zero means DefaultTimeout.
	Timeout time.Duration

	// RetryAttempts is the number of additional attempts for idempotent GET
	// requests that fail transiently. Zero means 2.
	RetryAttempts int
}

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	routes   map[string]string
	prefixes []string // route keys, longest first
	http     *http.Client
	timeout  time.Duration
	retries  uint64
	log      *slog.Logger
}

// NewHTTPClient builds a client whose transport injects the bearer token on
// every request.
func NewHTTPClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*HTTPClient, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("api token is required")
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("at least one route must be configured")
	}

	routes := make(map[string]string, len(cfg.Routes))
	prefixes := make([]string, 0, len(cfg.Routes))
	for prefix, base := range cfg.Routes {
		prefix = strings.TrimSpace(prefix)
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if prefix == "" || !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", prefix)
		}
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("route %q: base url %q must be absolute", prefix, base)
		}
		routes[prefix] = base
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	retries := uint64(2)
	if cfg.RetryAttempts > 0 {
		retries = uint64(cfg.RetryAttempts)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})

	return &HTTPClient{
		routes:   routes,
		prefixes: prefixes,
		http:     oauth2.NewClient(ctx, ts),
		timeout:  timeout,
		retries:  retries,
		log:      logger,
	}, nil
}

// Do executes the request and returns a normalized Result. Failures are
// logged here once; callers decide what to surface to the user.
func (c *HTTPClient) Do(ctx context.Context, req Request) Result {
	target, err := c.resolveURL(req.Path, req.Query)
	if err != nil {
		c.logFailure(req, err)
		return Result{Err: err}
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	if req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			err = fmt.Errorf("encode request body: %w", err)
			c.logFailure(req, err)
			return Result{Err: err}
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestID := uuid.NewString()

	var res Result
	attempt := func(ctx context.Context) error {
		res = c.once(ctx, method, target, body, requestID)
		if res.Err == nil {
			return nil
		}
		// Only idempotent GETs are safe to replay.
		if method == http.MethodGet && res.retryable {
			return retry.RetryableError(res.Err)
		}
		return res.Err
	}

	backoff := retry.WithMaxRetries(c.retries, retry.NewExponential(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, attempt); err != nil {
		c.logFailure(req, err)
	}
	return res
}

// resolveURL rewrites a recognized path prefix to its configured base URL.
// Unrecognized paths pass through unchanged and must already be absolute.
func (c *HTTPClient) resolveURL(path string, query url.Values) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("request path is required")
	}

	target := path
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(path, prefix) {
			target = c.routes[prefix] + strings.TrimPrefix(path, prefix)
			break
		}
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse request url %q: %w", target, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("no route matches path %q", path)
	}

	if len(query) > 0 {
		q := parsed.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		parsed.RawQuery = q.Encode()
	}

	return parsed.String(), nil
}

func (c *HTTPClient) once(ctx context.Context, method, target string, body []byte, requestID string) Result {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return Result{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Err: ctxErr}
		}
		return Result{Err: fmt.Errorf("%s %s: %w", method, target, err), retryable: true}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return Result{Err: fmt.Errorf("read response: %w", readErr), retryable: true}
	}

	// Decode the body even on failure; a structured code/message may be
	// present and callers inspect it.
	var env envelope
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode != http.StatusOK {
		return Result{
			Message:   env.Message,
			Code:      string(env.Code),
			Err:       fmt.Errorf("%s %s: unexpected status %d", method, target, resp.StatusCode),
			retryable: resp.StatusCode >= 500,
		}
	}

	return Result{
		Success: true,
		Data:    env.Data,
		Message: env.Message,
		Code:    string(env.Code),
	}
}

func (c *HTTPClient) logFailure(req Request, err error) {
	if c.log == nil {
		return
	}
	c.log.Warn("api request failed", "path", req.Path, "method", req.Method, "error", err)
}

var _ Client = (*HTTPClient)(nil)
