package resolve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxDocumentBytes bounds the size of a fetched mapping document
const DefaultMaxDocumentBytes = 64 << 20

// HTTPResolver fetches mapping documents over HTTP. Absolute URLs are
// fetched as is; other paths are resolved against BaseURL.
type HTTPResolver struct {
	BaseURL  string
	Client   *http.Client
	Headers  map[string]string
	MaxBytes int64
}

// NewHTTPResolver creates an HTTP resolver with a request timeout
func NewHTTPResolver(baseURL string, timeout time.Duration, headers map[string]string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL:  baseURL,
		Client:   &http.Client{Timeout: timeout},
		Headers:  headers,
		MaxBytes: DefaultMaxDocumentBytes,
	}
}

func (h *HTTPResolver) Resolve(ctx context.Context, path string) (string, error) {
	target, err := h.target(path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch %s: unexpected status %s", target, resp.Status)
	}

	limit := h.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxDocumentBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", target, err)
	}
	if int64(len(body)) > limit {
		return "", fmt.Errorf("document %s exceeds %d bytes", target, limit)
	}
	return string(body), nil
}

func (h *HTTPResolver) target(path string) (string, error) {
	if u, err := url.Parse(path); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return path, nil
	}
	if h.BaseURL == "" {
		return "", fmt.Errorf("%q is not an http url and no base_url is configured", path)
	}
	base, err := url.Parse(h.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base_url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	return base.ResolveReference(ref).String(), nil
}
