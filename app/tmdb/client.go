package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api.themoviedb.org/3"
	DefaultInterval    = 230 * time.Millisecond
	DefaultMaxAttempts = 6

	minRateLimitWait = 1500 * time.Millisecond
	defaultRetryWait = 2 * time.Second
	backoffStep      = 800 * time.Millisecond
	maxErrorBody     = 200
)

type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	// Interval is the minimum spacing between requests. Zero selects
	// DefaultInterval; a negative value disables pacing.
	Interval    time.Duration
	MaxAttempts int
	HTTPClient  *http.Client
}

// Client talks to the TMDb v3 API. Every attempt, retries included, waits for
// the shared limiter, so callers never need their own pacing.
type Client struct {
	baseURL     string
	token       string
	userAgent   string
	maxAttempts int
	httpClient  *http.Client
	limiter     *rate.Limiter
	wait        func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}

	return &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		token:       cfg.Token,
		userAgent:   cfg.UserAgent,
		maxAttempts: cfg.MaxAttempts,
		httpClient:  cfg.HTTPClient,
		limiter:     rate.NewLimiter(limit, 1),
		wait:        sleepContext,
	}
}

func (c *Client) Details(ctx context.Context, media MediaType, id int64, language string) (*Details, error) {
	var raw detailsResponse
	path := fmt.Sprintf("/%s/%d", media, id)
	if err := c.get(ctx, path, url.Values{"language": {language}}, &raw); err != nil {
		return nil, err
	}

	details := &Details{
		Overview:    raw.Overview,
		Genres:      make([]string, 0, len(raw.Genres)),
		PosterPath:  raw.PosterPath,
		Popularity:  raw.Popularity,
		VoteCount:   raw.VoteCount,
		VoteAverage: raw.VoteAverage,
	}
	for _, g := range raw.Genres {
		if g.Name != "" {
			details.Genres = append(details.Genres, g.Name)
		}
	}

	return details, nil
}

func (c *Client) Keywords(ctx context.Context, media MediaType, id int64) ([]string, error) {
	var raw keywordsResponse
	path := fmt.Sprintf("/%s/%d/keywords", media, id)
	if err := c.get(ctx, path, nil, &raw); err != nil {
		return nil, err
	}

	list := raw.Keywords
	if len(list) == 0 {
		list = raw.Results
	}

	keywords := make([]string, 0, len(list))
	for _, k := range list {
		if k.Name != "" {
			keywords = append(keywords, k.Name)
		}
	}
	return keywords, nil
}

func (c *Client) Discover(ctx context.Context, media MediaType, filter DiscoverFilter) (*DiscoverPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	language := filter.Language
	if language == "" {
		language = LanguageES
	}

	query := url.Values{
		"language":         {language},
		"sort_by":          {"popularity.desc"},
		"include_adult":    {"false"},
		"page":             {strconv.Itoa(page)},
		"vote_count.gte":   {strconv.Itoa(filter.MinVoteCount)},
		"vote_average.gte": {strconv.FormatFloat(filter.MinVoteAverage, 'f', -1, 64)},
	}
	if media == MediaTV {
		query.Set("first_air_date_year", strconv.Itoa(filter.Year))
	} else {
		query.Set("include_video", "false")
		query.Set("primary_release_year", strconv.Itoa(filter.Year))
	}

	var result DiscoverPage
	if err := c.get(ctx, "/discover/"+string(media), query, &result); err != nil {
		return nil, err
	}
	if result.Results == nil {
		result.Results = []DiscoverResult{}
	}
	return &result, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The next token would arrive after the context deadline.
			return fmt.Errorf("rate limiter: %w: %w", context.DeadlineExceeded, err)
		}

		resp, body, err := c.doOnce(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if attempt < c.maxAttempts {
				if err := c.wait(ctx, backoffStep*time.Duration(attempt)); err != nil {
					return err
				}
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfter(resp.Header.Get("Retry-After"))
			slog.Warn("TMDb rate limit hit", "path", path, "attempt", attempt, "wait", delay.String())
			lastErr = newStatusError(resp, body)
			if attempt < c.maxAttempts {
				if err := c.wait(ctx, delay); err != nil {
					return err
				}
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			lastErr = newStatusError(resp, body)
			if !retryable(resp.StatusCode) {
				return lastErr
			}
			slog.Debug("TMDb request failed, retrying", "path", path, "attempt", attempt, "status", resp.StatusCode)
			if attempt < c.maxAttempts {
				if err := c.wait(ctx, backoffStep*time.Duration(attempt)); err != nil {
					return err
				}
			}
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		return nil
	}

	return fmt.Errorf("tmdb request %s failed after %d attempts: %w", path, c.maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, endpoint string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read body: %w", err)
	}

	return resp, body, nil
}

// retryable reports whether a non-2xx status other than 429 is worth another
// attempt. Client errors such as 401 or 404 will not change on retry.
func retryable(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout
}

func retryAfter(header string) time.Duration {
	delay := defaultRetryWait
	header = strings.TrimSpace(header)
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			delay = time.Duration(secs) * time.Second
		} else if when, err := http.ParseTime(header); err == nil {
			delay = time.Until(when)
		}
	}
	return max(delay, minRateLimitWait)
}

func newStatusError(resp *http.Response, body []byte) *StatusError {
	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: text}
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == status
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
