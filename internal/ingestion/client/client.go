// Package client fetches raw analytics events from the event store export
// API, one page at a time, with rate-limit aware retries.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"listingportal_backend/platform/config"
	"listingportal_backend/platform/logger"
)

const (
	exportPath      = "/api/2.0/events/export"
	defaultPageSize = 10000

	// maxPages caps a single export walk; a window that still has more
	// pages at the cap is reported as truncated rather than fetched forever.
	maxPages = 100

	// pageInterval is the courtesy spacing between page requests.
	pageInterval = 100 * time.Millisecond
)

// Client talks to the analytics event store.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	policy     Policy
	limiter    *rate.Limiter
	log        *logger.Logger
}

func New(cfg config.AnalyticsConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.GetAnalyticsBaseURL(), "/"),
		secret:     cfg.GetAnalyticsAPISecret(),
		policy:     DefaultPolicy(),
		limiter:    rate.NewLimiter(rate.Every(pageInterval), 1),
		log:        log,
	}
}

// Export starts a paginated walk over events of the given names inside
// [start, end). Pages are fetched lazily through the returned Pager.
func (c *Client) Export(start, end time.Time, eventNames []string, pageSize int) *Pager {
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	return &Pager{
		client: c,
		start:  start,
		end:    end,
		names:  eventNames,
		limit:  pageSize,
	}
}

// Pager iterates export pages. It is not safe for concurrent use.
type Pager struct {
	client *Client
	start  time.Time
	end    time.Time
	names  []string
	limit  int

	offset    int
	pages     int
	done      bool
	truncated bool
}

// HasNext reports whether another page may be available.
func (p *Pager) HasNext() bool { return !p.done }

// Truncated reports whether the walk stopped at the page ceiling with more
// data still available upstream.
func (p *Pager) Truncated() bool { return p.truncated }

// Next fetches the next page. A fetch failure ends the walk; the returned
// error is a *FetchError.
func (p *Pager) Next(ctx context.Context) ([]RawEvent, error) {
	if p.done {
		return nil, nil
	}
	if err := p.client.limiter.Wait(ctx); err != nil {
		p.done = true
		return nil, &FetchError{Attempts: 0, Err: err}
	}

	page, err := p.client.fetchPage(ctx, p.start, p.end, p.names, p.offset, p.limit)
	if err != nil {
		p.done = true
		return nil, err
	}

	p.pages++
	p.offset += len(page.Events)
	if !page.HasMore || len(page.Events) < p.limit {
		p.done = true
	}
	if !p.done && p.pages >= maxPages {
		p.done = true
		p.truncated = true
		p.client.log.Warn("event export stopped at page ceiling",
			"pages", p.pages,
			"events_fetched", p.offset,
		)
	}
	return page.Events, nil
}

func (c *Client) fetchPage(ctx context.Context, start, end time.Time, names []string, offset, limit int) (*exportPage, error) {
	params := url.Values{}
	params.Set("from", strconv.FormatInt(start.Unix(), 10))
	params.Set("to", strconv.FormatInt(end.Unix(), 10))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	if len(names) > 0 {
		params.Set("event", strings.Join(names, ","))
	}
	endpoint := c.baseURL + exportPath + "?" + params.Encode()

	var lastStatus int
	var lastRateLimited bool
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		page, status, err := c.do(ctx, endpoint)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, &FetchError{Status: lastStatus, Attempts: attempt, Err: ctx.Err()}
		}

		rateLimited := status == http.StatusTooManyRequests
		retryable := rateLimited || status == 0 || status >= 500
		if !retryable {
			return nil, &FetchError{Status: status, Attempts: attempt, Err: err}
		}

		lastStatus, lastRateLimited, lastErr = status, rateLimited, err
		if attempt == c.policy.MaxAttempts {
			break
		}

		c.log.FetchRetry("event_store", attempt, rateLimited, err)
		delay := c.policy.Delay(rateLimited, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &FetchError{Status: status, RateLimited: rateLimited, Attempts: attempt, Err: ctx.Err()}
		}
	}
	return nil, &FetchError{
		Status:      lastStatus,
		RateLimited: lastRateLimited,
		Attempts:    c.policy.MaxAttempts,
		Err:         lastErr,
	}
}

func (c *Client) do(ctx context.Context, endpoint string) (*exportPage, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("event store export: status %d", resp.StatusCode)
	}

	var page exportPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("event store export: decode response: %w", err)
	}
	return &page, resp.StatusCode, nil
}
