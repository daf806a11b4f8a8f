package pipeline

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/YesIKnowIT/SODump/internal/config"
)

// FetchResult is the classified outcome of retrieving one capture.
type FetchResult struct {
	StatusCode int
	Body       []byte
	Location   string // Location header on 3xx responses
}

// Fetcher retrieves the content of one capture. The HTTP implementation
// serves the crawl; the file implementation serves offline reparsing of
// an already-downloaded tree.
type Fetcher interface {
	Fetch(ctx context.Context, key, url string) (*FetchResult, error)
}

// HTTPFetcher downloads captures from the Wayback replay endpoint with
// bounded connect/read timeouts and a fixed identifying User-Agent.
// Redirects are not followed: a 3xx is a classification the worker
// handles itself.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher from the configured timeouts.
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &HTTPFetcher{client: client, userAgent: cfg.UserAgent}
}

// Fetch performs the GET and reads the whole body.
func (f *HTTPFetcher) Fetch(ctx context.Context, key, url string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &FetchResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		Location:   resp.Header.Get("Location"),
	}, nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() {
	f.client.CloseIdleConnections()
}

// FileFetcher reads capture content from a downloaded archive tree; the
// storage key is the relative file path. Missing files report 404 so the
// pipeline classifies them exactly like a miss on the network.
type FileFetcher struct {
	Root string
}

// Fetch reads the file addressed by key.
func (f *FileFetcher) Fetch(ctx context.Context, key, url string) (*FetchResult, error) {
	body, err := os.ReadFile(filepath.Join(f.Root, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return &FetchResult{StatusCode: http.StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return &FetchResult{StatusCode: http.StatusOK, Body: body}, nil
}
