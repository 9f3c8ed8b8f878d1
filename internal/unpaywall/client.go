// Package unpaywall queries the Unpaywall API for open-access full texts.
package unpaywall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the Unpaywall API base URL.
	BaseURL = "https://api.unpaywall.org/v2"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit keeps us within the documented 100k requests per day.
	RateLimit = 1.0

	// MaxRetries bounds retry attempts on transient failures.
	MaxRetries = 3
)

// ErrNoOpenAccess indicates the DOI has no known open-access location.
var ErrNoOpenAccess = errors.New("unpaywall: no open-access location")

// Location is an open-access full-text location.
type Location struct {
	PDFURL  string
	Version string
}

// Client is a rate-limited Unpaywall API client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	email      string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// NewClient creates a new Unpaywall client. The email identifies the
// caller as the API requires.
func NewClient(email string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
		email:      email,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the best open-access location for a DOI.
func (c *Client) Lookup(ctx context.Context, doi string) (*Location, error) {
	q := url.Values{}
	q.Set("email", c.email)

	var resp struct {
		BestOALocation *struct {
			URLForPDF string `json:"url_for_pdf"`
			Version   string `json:"version"`
		} `json:"best_oa_location"`
	}
	path := "/" + url.PathEscape(doi) + "?" + q.Encode()
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	if resp.BestOALocation == nil || resp.BestOALocation.URLForPDF == "" {
		return nil, ErrNoOpenAccess
	}
	return &Location{
		PDFURL:  resp.BestOALocation.URLForPDF,
		Version: resp.BestOALocation.Version,
	}, nil
}

// Download fetches a PDF into dest, writing through a temporary file so a
// partial download never appears under the final name.
func (c *Client) Download(ctx context.Context, pdfURL, dest string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unpaywall: download status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return ErrNoOpenAccess
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("unpaywall: status %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return fmt.Errorf("unpaywall: status %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("unpaywall: decoding response: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("unpaywall: giving up after %d attempts: %w", MaxRetries, lastErr)
}
