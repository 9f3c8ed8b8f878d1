// Package crossref is a rate-limited client for the Crossref REST API.
package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the Crossref REST API base URL.
	BaseURL = "https://api.crossref.org"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// RateLimit follows the polite-pool guidance of 50 requests per second;
	// we stay well below it.
	RateLimit = 10.0

	// MaxRetries bounds retry attempts on transient failures.
	MaxRetries = 3
)

// ErrNotFound indicates the DOI or query yielded no work.
var ErrNotFound = errors.New("crossref: not found")

// Work is the subset of Crossref work metadata used for enrichment.
type Work struct {
	DOI            string
	Title          string
	ContainerTitle string
	Authors        []Author
	Year           string
	Volume         string
	Issue          string
	Pages          string
	Abstract       string
}

// Author is one contributor of a work.
type Author struct {
	Given  string
	Family string
}

// Client is a rate-limited HTTP client for the Crossref API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	mailto     string
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

// WithMailto sets the polite-pool contact address.
func WithMailto(email string) ClientOption {
	return func(c *Client) { c.mailto = email }
}

// NewClient creates a new Crossref client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		baseURL:    BaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// QueryTitle searches works by bibliographic title and returns the best
// match.
func (c *Client) QueryTitle(ctx context.Context, title string) (*Work, error) {
	q := url.Values{}
	q.Set("query.bibliographic", title)
	q.Set("rows", "1")
	if c.mailto != "" {
		q.Set("mailto", c.mailto)
	}

	var resp struct {
		Message struct {
			Items []workJSON `json:"items"`
		} `json:"message"`
	}
	if err := c.get(ctx, "/works?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Message.Items) == 0 {
		return nil, ErrNotFound
	}
	return resp.Message.Items[0].toWork(), nil
}

// GetDOI retrieves the metadata of a known DOI.
func (c *Client) GetDOI(ctx context.Context, doi string) (*Work, error) {
	var resp struct {
		Message workJSON `json:"message"`
	}
	if err := c.get(ctx, "/works/"+url.PathEscape(doi), &resp); err != nil {
		return nil, err
	}
	return resp.Message.toWork(), nil
}

// get performs a rate-limited GET with bounded exponential retry on
// transient failures (5xx, network errors, malformed JSON).
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
			return ErrNotFound
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("crossref: status %d", resp.StatusCode)
			continue
		case resp.StatusCode != http.StatusOK:
			resp.Body.Close()
			return fmt.Errorf("crossref: status %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("crossref: decoding response: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("crossref: giving up after %d attempts: %w", MaxRetries, lastErr)
}

// workJSON mirrors the wire format.
type workJSON struct {
	DOI            string     `json:"DOI"`
	Title          []string   `json:"title"`
	ContainerTitle []string   `json:"container-title"`
	Author         []struct{ Given, Family string } `json:"author"`
	Issued         struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	Volume   string `json:"volume"`
	Issue    string `json:"issue"`
	Page     string `json:"page"`
	Abstract string `json:"abstract"`
}

func (w workJSON) toWork() *Work {
	work := &Work{
		DOI:      w.DOI,
		Volume:   w.Volume,
		Issue:    w.Issue,
		Pages:    w.Page,
		Abstract: w.Abstract,
	}
	if len(w.Title) > 0 {
		work.Title = w.Title[0]
	}
	if len(w.ContainerTitle) > 0 {
		work.ContainerTitle = w.ContainerTitle[0]
	}
	for _, a := range w.Author {
		work.Authors = append(work.Authors, Author{Given: a.Given, Family: a.Family})
	}
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 {
		work.Year = strconv.Itoa(w.Issued.DateParts[0][0])
	}
	return work
}

// AuthorString renders authors in "Family, Given and Family, Given" form.
func (w *Work) AuthorString() string {
	s := ""
	for i, a := range w.Authors {
		if i > 0 {
			s += " and "
		}
		if a.Given != "" {
			s += a.Family + ", " + a.Given
		} else {
			s += a.Family
		}
	}
	return s
}
