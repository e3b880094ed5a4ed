package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mylife-as-miles/Jobraker-sub002/internal/domain"
)

const (
	httpTimeout  = 15 * time.Second
	maxErrorBody = 1024
	userAgent    = "Mozilla/5.0 (compatible; JobIngest/1.0)"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// getJSON issues an unauthenticated GET and decodes the body into out.
// Failures come back as *domain.UpstreamError tagged with provider.
func getJSON(ctx context.Context, client *http.Client, provider, reqURL string, out any) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NetworkError(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NetworkError(provider, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return nil, domain.RateLimited(provider, secs)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, domain.HTTPError(provider, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", provider, err)
	}
	return body, nil
}
