// Package oddsapi implements domain.OddsClient against TheOddsAPI v4. A
// single client aggregates every bookmaker the venue returns; each event
// carries per-book lines keyed by bookmaker id.
//
// The venue bills by credits: one credit per bookmaker returned per request.
// Remaining credits come back in the X-Requests-Remaining response header and
// the client refuses to send further requests once fewer than
// MinCreditsRemaining are left.
package oddsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.the-odds-api.com/v4"

// MinCreditsRemaining is the floor below which the client stops issuing
// requests so the billing period does not run dry mid-session.
const MinCreditsRemaining = 10

// ErrCreditsExhausted is returned once the remaining credit headroom drops
// below MinCreditsRemaining. It wraps domain.ErrRateLimited so callers back
// off without counting a venue failure.
var ErrCreditsExhausted = fmt.Errorf("api credits nearly exhausted: %w", domain.ErrRateLimited)

// Client is the REST client for TheOddsAPI v4, implementing domain.OddsClient.
// Auth is an apiKey query parameter.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// Limits requests to these bookmaker keys when non-empty; each bookmaker
	// returned costs one credit, so the filter bounds spend per request.
	bookmakers []string

	mu               sync.Mutex
	creditsRemaining int
	creditsUsed      int
}

// NewClient creates the REST client. baseURL may be empty for the production
// endpoint.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		creditsRemaining: -1,
		creditsUsed:      -1,
	}
}

// SetBookmakers restricts fetches to the given bookmaker keys.
func (c *Client) SetBookmakers(keys ...string) {
	c.bookmakers = keys
}

// Credits reports the venue's last-seen credit counters. Both are -1 before
// the first response.
func (c *Client) Credits() (remaining, used int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creditsRemaining, c.creditsUsed
}

// GetSports lists the venue's active sports.
func (c *Client) GetSports(ctx context.Context) ([]Sport, error) {
	body, err := c.get(ctx, "/sports", nil)
	if err != nil {
		return nil, fmt.Errorf("oddsapi: get sports: %w", err)
	}

	var dtos []sportDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("oddsapi: decode sports: %w", err)
	}

	var out []Sport
	for _, s := range dtos {
		if !s.Active {
			continue
		}
		out = append(out, Sport{Key: s.Key, Title: s.Title, Active: s.Active})
	}
	return out, nil
}

// GetLines fetches current lines for the query's sport. Regions defaults to
// "us" and market types to moneyline when the query leaves them empty.
func (c *Client) GetLines(ctx context.Context, q domain.LineQuery) ([]domain.OddsEvent, error) {
	regions := q.Regions
	if len(regions) == 0 {
		regions = []string{"us"}
	}
	markets := q.MarketTypes
	if len(markets) == 0 {
		markets = []domain.MarketType{domain.MarketMoneyline}
	}
	marketKeys := make([]string, len(markets))
	for i, m := range markets {
		marketKeys[i] = string(m)
	}

	params := url.Values{}
	params.Set("regions", strings.Join(regions, ","))
	params.Set("markets", strings.Join(marketKeys, ","))
	params.Set("oddsFormat", "american")
	if len(c.bookmakers) > 0 {
		params.Set("bookmakers", strings.Join(c.bookmakers, ","))
	}

	body, err := c.get(ctx, "/sports/"+q.SportKey+"/odds", params)
	if err != nil {
		return nil, fmt.Errorf("oddsapi: get odds %s: %w", q.SportKey, err)
	}

	var dtos []eventDTO
	if err := json.Unmarshal(body, &dtos); err != nil {
		return nil, fmt.Errorf("oddsapi: decode odds: %w", err)
	}

	out := make([]domain.OddsEvent, 0, len(dtos))
	for _, e := range dtos {
		out = append(out, toEvent(e))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.checkCredits(); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	c.updateCredits(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) checkCredits() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creditsRemaining >= 0 && c.creditsRemaining < MinCreditsRemaining {
		return fmt.Errorf("%w (%d remaining)", ErrCreditsExhausted, c.creditsRemaining)
	}
	return nil
}

func (c *Client) updateCredits(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v := h.Get("X-Requests-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.creditsRemaining = n
		}
	}
	if v := h.Get("X-Requests-Used"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.creditsUsed = n
		}
	}
}

func checkStatus(statusCode int, body []byte) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusUnauthorized:
		return errors.New("authentication failed, check the api key")
	case statusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, strings.TrimSpace(string(body)))
	case statusCode >= 500:
		return fmt.Errorf("%w: http %d", domain.ErrVenueUnavailable, statusCode)
	default:
		return fmt.Errorf("http %d: %s", statusCode, strings.TrimSpace(string(body)))
	}
}
