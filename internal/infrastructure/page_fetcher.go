package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"taiyari/internal/entities"
)

// Pages larger than this are cut before parsing.
const maxPageBytes = 5 << 20

type HTTPPageFetcher struct {
	userAgent  string
	httpClient *http.Client
}

func NewHTTPPageFetcher(userAgent string, timeout time.Duration) *HTTPPageFetcher {
	return &HTTPPageFetcher{
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch GETs url. Transport errors and non-2xx responses wrap
// entities.ErrFetchFailed.
func (f *HTTPPageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request for %s: %w", url, entities.ErrFetchFailed)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w: %w", url, entities.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("GET %s: status %d: %w", url, resp.StatusCode, entities.ErrFetchFailed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w: %w", url, entities.ErrFetchFailed, err)
	}
	return string(body), nil
}
