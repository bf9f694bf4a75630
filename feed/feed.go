// Package feed reads new submissions from the site's listing API.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"subscription_watcher/config"
	"subscription_watcher/submission"
)

var log = logrus.WithField("component", "feed")

// maxErrorBody bounds how much of a failed response ends up in the error.
const maxErrorBody = 512

// page is the listing API response body.
type page struct {
	Submissions []submission.Submission `json:"submissions"`
}

// Client fetches pages of submissions, newest first.
type Client struct {
	baseURL    string
	token      string
	maxPages   int
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a feed client. Returns nil if cfg is nil or has no URL.
func NewClient(cfg *config.FeedConfig) *Client {
	if cfg == nil || cfg.URL == "" {
		return nil
	}

	return &Client{
		baseURL:  cfg.URL,
		token:    cfg.Token,
		maxPages: cfg.GetMaxPages(),
		limiter:  rate.NewLimiter(rate.Every(cfg.GetPageDelay()), 1),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// URL returns the listing endpoint this client reads.
func (c *Client) URL() string {
	return c.baseURL
}

// Fetch returns the submissions posted after the one with ID since, oldest
// first. It reads at most maxPages pages and stops at the first page that
// contains since. With an empty since only the first page is read.
func (c *Client) Fetch(ctx context.Context, since string) ([]submission.Submission, error) {
	pages := c.maxPages
	if since == "" {
		pages = 1
	}

	var newest []submission.Submission
	for n := 1; n <= pages; n++ {
		items, err := c.fetchPage(ctx, n)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}

		idx := slices.IndexFunc(items, func(s submission.Submission) bool { return s.ID == since })
		if idx >= 0 {
			newest = append(newest, items[:idx]...)
			slices.Reverse(newest)
			return newest, nil
		}
		newest = append(newest, items...)
	}

	if since != "" {
		log.WithField("since", since).WithField("pages", pages).Warn("Last seen submission not found, some submissions may have been missed")
	}
	slices.Reverse(newest)
	return newest, nil
}

func (c *Client) fetchPage(ctx context.Context, n int) ([]submission.Submission, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid feed url %q: %w", c.baseURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %d: %w", n, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("feed request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode page %d: %w", n, err)
	}

	log.WithField("page", n).WithField("count", len(p.Submissions)).Debug("Fetched page")
	return p.Submissions, nil
}
