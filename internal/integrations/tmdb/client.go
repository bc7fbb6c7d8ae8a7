package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"filmate/internal/domain"
)

const (
	DefaultBaseURL  = "https://api.themoviedb.org/3"
	DefaultLanguage = "ja-JP"

	// minVoteCount filters discovery to titles with a meaningful audience.
	minVoteCount = 100
)

// TokenSource yields the API key. *paramstore.Secret satisfies it.
type TokenSource interface {
	Value(ctx context.Context) (string, error)
}

// HTTPStatusError captures non-2xx responses. Path excludes the query string
// so the API key never reaches logs.
type HTTPStatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("tmdb: unexpected status %d from %s: %s", e.StatusCode, e.Path, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type movieResult struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	Overview    string `json:"overview"`
	PosterPath  string `json:"poster_path"`
}

type moviePage struct {
	Results []movieResult `json:"results"`
}

type keywordPage struct {
	Results []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"results"`
}

type genreList struct {
	Genres []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
}

// Client is a focused TMDB v3 client for movie lookup. Requests are paced by
// a token bucket and guarded by a circuit breaker so a degraded catalog fails
// fast instead of stalling the worker.
type Client struct {
	apiKey     TokenSource
	baseURL    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]

	failureThreshold uint32
	openTimeout      time.Duration
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLanguage(language string) Option {
	return func(c *Client) {
		if language = strings.TrimSpace(language); language != "" {
			c.language = language
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreaker sets how many consecutive failures open the breaker and how
// long it stays open.
func WithBreaker(failureThreshold uint32, openTimeout time.Duration) Option {
	return func(c *Client) {
		c.failureThreshold = failureThreshold
		c.openTimeout = openTimeout
	}
}

func NewClient(apiKey TokenSource, opts ...Option) (*Client, error) {
	if apiKey == nil {
		return nil, errors.New("tmdb: api key source must not be nil")
	}
	c := &Client{
		apiKey:           apiKey,
		baseURL:          DefaultBaseURL,
		language:         DefaultLanguage,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		limiter:          rate.NewLimiter(rate.Limit(40), 10),
		failureThreshold: 5,
		openTimeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.failureThreshold == 0 {
		c.failureThreshold = 1
	}
	threshold := c.failureThreshold
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "tmdb",
		Timeout: c.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isBreakerSuccess,
	})
	return c, nil
}

// SearchKeywords resolves free text to TMDB keyword ids.
func (c *Client) SearchKeywords(ctx context.Context, query string) ([]int, error) {
	var page keywordPage
	if err := c.get(ctx, "/search/keyword", url.Values{"query": {query}}, &page); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(page.Results))
	for _, kw := range page.Results {
		ids = append(ids, kw.ID)
	}
	return ids, nil
}

// DiscoverByKeywords lists popular movies tagged with all of the keywords.
func (c *Client) DiscoverByKeywords(ctx context.Context, keywordIDs []int, limit int) ([]domain.Movie, error) {
	return c.discover(ctx, "with_keywords", keywordIDs, limit)
}

// DiscoverByGenres lists popular movies in all of the genres.
func (c *Client) DiscoverByGenres(ctx context.Context, genreIDs []int, limit int) ([]domain.Movie, error) {
	return c.discover(ctx, "with_genres", genreIDs, limit)
}

// SearchTitle runs a title search, excluding adult titles.
func (c *Client) SearchTitle(ctx context.Context, query string, limit int) ([]domain.Movie, error) {
	var page moviePage
	params := url.Values{
		"query":         {query},
		"include_adult": {"false"},
	}
	if err := c.get(ctx, "/search/movie", params, &page); err != nil {
		return nil, err
	}
	return toMovies(page.Results, limit), nil
}

// ListGenres returns the localized genre taxonomy keyed by lower-cased name.
func (c *Client) ListGenres(ctx context.Context) (map[string]int, error) {
	var list genreList
	if err := c.get(ctx, "/genre/movie/list", url.Values{}, &list); err != nil {
		return nil, err
	}
	genres := make(map[string]int, len(list.Genres))
	for _, g := range list.Genres {
		if name := strings.ToLower(strings.TrimSpace(g.Name)); name != "" {
			genres[name] = g.ID
		}
	}
	return genres, nil
}

func (c *Client) discover(ctx context.Context, filter string, ids []int, limit int) ([]domain.Movie, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{
		"sort_by":        {"popularity.desc"},
		"vote_count.gte": {strconv.Itoa(minVoteCount)},
		filter:           {joinIDs(ids)},
	}
	var page moviePage
	if err := c.get(ctx, "/discover/movie", params, &page); err != nil {
		return nil, err
	}
	return toMovies(page.Results, limit), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("tmdb: rate limit wait: %w", err)
	}
	apiKey, err := c.apiKey.Value(ctx)
	if err != nil {
		return fmt.Errorf("tmdb: resolve api key: %w", err)
	}
	params.Set("api_key", apiKey)
	params.Set("language", c.language)

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.do(ctx, path, params)
	})
	if err != nil {
		return fmt.Errorf("tmdb: GET %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("tmdb: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		// The query carries api_key; report the path only.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, &url.Error{Op: urlErr.Op, URL: c.baseURL + path, Err: urlErr.Err}
		}
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, Path: path, Body: string(buf)}
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

// isBreakerSuccess keeps client errors (bad query, unknown id) from tripping
// the breaker; only throttling, server errors and transport failures count.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

func toMovies(results []movieResult, limit int) []domain.Movie {
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	movies := make([]domain.Movie, 0, len(results))
	for _, r := range results {
		overview := strings.TrimSpace(r.Overview)
		if overview == "" {
			overview = domain.DefaultOverview
		}
		movies = append(movies, domain.Movie{
			ID:          r.ID,
			Title:       r.Title,
			ReleaseYear: domain.ReleaseYear(r.ReleaseDate),
			Overview:    overview,
			PosterPath:  r.PosterPath,
		})
	}
	return movies
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
