// JSON-over-HTTP client shared by the catalog, store and device bridge integrations
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/crossplay/internal/shared"
	"golang.org/x/time/rate"
)

// BearerFunc supplies the bearer token for a request.
type BearerFunc func(ctx context.Context) (string, error)

// APIClient performs JSON requests against one base URL.
//
// Static headers, a bearer token source and a request rate limit are optional.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	header     http.Header
	bearer     BearerFunc
	limiter    *rate.Limiter
}

// NewAPIClient creates a client for baseURL. A nil client uses [http.DefaultClient].
func NewAPIClient(baseURL string, client *http.Client) *APIClient {
	if client == nil {
		client = http.DefaultClient
	}

	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		header:     make(http.Header),
	}
}

// WithHeader sets a header sent on every request.
func (a *APIClient) WithHeader(key, value string) *APIClient {
	a.header.Set(key, value)
	return a
}

// WithBearer authorizes every request with the token returned by fn.
func (a *APIClient) WithBearer(fn BearerFunc) *APIClient {
	a.bearer = fn
	return a
}

// WithLimiter throttles requests through l.
func (a *APIClient) WithLimiter(l *rate.Limiter) *APIClient {
	a.limiter = l
	return a
}

// BaseURL returns the URL requests are resolved against.
func (a *APIClient) BaseURL() string {
	return a.baseURL
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into out.
func (r *APIResponse) Decode(out any) error {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Err maps a non-2xx response to a wrapped sentinel error naming service.
func (r *APIResponse) Err(service string) error {
	if r.OK() {
		return nil
	}

	body := strings.TrimSpace(string(r.Body))
	if len(body) > 200 {
		body = body[:200]
	}

	switch {
	case r.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s returned %d %s", shared.ErrNotAuthenticated, service, r.StatusCode, body)
	case r.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s returned %d %s", shared.ErrAuthorizationDenied, service, r.StatusCode, body)
	case r.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned %d %s", shared.ErrServiceUnavailable, service, r.StatusCode, body)
	default:
		return fmt.Errorf("%w: %s returned %d %s", shared.ErrAPIRequest, service, r.StatusCode, body)
	}
}

// Do sends a request. body may be nil, a []byte sent as-is, or any value encoded as JSON.
func (a *APIClient) Do(ctx context.Context, method, path string, query url.Values, body any, header http.Header) (*APIResponse, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range a.header {
		req.Header[k] = v
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if reader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if a.bearer != nil {
		token, err := a.bearer(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
	}

	var jsonData any
	if err := json.Unmarshal(data, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIClient) Get(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, query, nil, nil)
}

// Post performs a POST request with body encoded as JSON and returns the raw response.
func (a *APIClient) Post(ctx context.Context, path string, body any) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, nil, body, nil)
}

// Put performs a PUT request with body encoded as JSON and returns the raw response.
func (a *APIClient) Put(ctx context.Context, path string, body any) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPut, path, nil, body, nil)
}

// call sends a request and decodes a successful JSON response into out, which may be nil.
func (a *APIClient) call(ctx context.Context, service, method, path string, query url.Values, body, out any) error {
	resp, err := a.Do(ctx, method, path, query, body, nil)
	if err != nil {
		return err
	}
	if err := resp.Err(service); err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}
