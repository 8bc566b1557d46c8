package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// Client is the REST client for the exchange venue, implementing
// domain.ExchangeClient. Requests are signed with RSA-PSS-SHA256 over
// timestamp + method + path.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	clock      domain.Clock
}

// NewClient creates the REST client.
//
// baseURL is the API root, e.g. "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKeyID string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		clock: domain.RealClock{},
	}
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetInstruments lists the game instruments for the filter's series, paging
// through the venue's market listing. Markets whose side cannot be parsed
// are skipped rather than surfaced as errors.
func (c *Client) GetInstruments(ctx context.Context, filter domain.InstrumentFilter) ([]domain.Instrument, error) {
	var out []domain.Instrument
	for _, series := range filter.Series {
		cursor := ""
		for {
			params := url.Values{}
			params.Set("series_ticker", series)
			params.Set("limit", "200")
			if filter.Status != "" {
				params.Set("status", filter.Status)
			}
			if cursor != "" {
				params.Set("cursor", cursor)
			}

			body, err := c.doSignedRequest(ctx, http.MethodGet, "/markets?"+params.Encode())
			if err != nil {
				return nil, fmt.Errorf("kalshi: get markets %s: %w", series, err)
			}

			var resp struct {
				Markets []marketDTO `json:"markets"`
				Cursor  string      `json:"cursor"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return nil, fmt.Errorf("kalshi: decode markets: %w", err)
			}

			for _, m := range resp.Markets {
				if inst, ok := toInstrument(m, series); ok {
					out = append(out, inst)
				}
			}
			if resp.Cursor == "" || len(resp.Markets) == 0 {
				break
			}
			cursor = resp.Cursor
		}
	}
	return out, nil
}

// GetOrderbook returns the current book for the given instrument.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (domain.OrderbookSnapshot, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}

	var resp struct {
		Orderbook orderbookDTO `json:"orderbook"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("kalshi: decode orderbook: %w", err)
	}

	return toSnapshot(ticker, resp.Orderbook.Yes, resp.Orderbook.No, c.clock.Now()), nil
}

// PlaceOrder submits a limit order and returns its handle.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	dto := orderRequestDTO{
		Ticker:   req.Ticker,
		Action:   "buy",
		Side:     string(req.Side),
		Type:     "limit",
		Count:    req.Count,
		ClientID: req.ClientID,
	}
	price := req.PriceCents
	if req.Side == domain.SideYes {
		dto.YesPrice = &price
	} else {
		dto.NoPrice = &price
	}

	body, err := c.doSignedRequestBody(ctx, http.MethodPost, "/portfolio/orders", dto)
	if err != nil {
		return domain.OrderHandle{}, fmt.Errorf("kalshi: place order: %w", err)
	}

	var resp struct {
		Order orderDTO `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderHandle{}, fmt.Errorf("kalshi: decode order response: %w", err)
	}
	if resp.Order.Status == "canceled" {
		return domain.OrderHandle{}, fmt.Errorf("kalshi: order immediately cancelled: %w", domain.ErrRejected)
	}

	return domain.OrderHandle{Venue: domain.VenueKalshi, OrderID: resp.Order.OrderID}, nil
}

// GetOrderStatus reads the venue-reported state of an order.
func (c *Client) GetOrderStatus(ctx context.Context, handle domain.OrderHandle) (domain.OrderStatus, error) {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(handle.OrderID))

	body, err := c.doSignedRequest(ctx, http.MethodGet, path)
	if err != nil {
		return domain.OrderStatus{}, fmt.Errorf("kalshi: get order %s: %w", handle.OrderID, err)
	}

	var resp struct {
		Order orderDTO `json:"order"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("kalshi: decode order: %w", err)
	}
	return orderState(resp.Order), nil
}

// CancelOrder cancels the resting remainder of an order.
func (c *Client) CancelOrder(ctx context.Context, handle domain.OrderHandle) error {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(handle.OrderID))

	if _, err := c.doSignedRequest(ctx, http.MethodDelete, path); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", handle.OrderID, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doSignedRequest(ctx context.Context, method, path string) ([]byte, error) {
	return c.do(ctx, method, path, nil)
}

func (c *Client) doSignedRequestBody(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, method, path, jsonBody)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	// The signed path excludes the query string.
	signPath := path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}
	if err := c.signRequest(req, method, signPath); err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// signRequest adds the venue's authentication headers: an RSA-PSS-SHA256
// signature over timestamp + method + path.
func (c *Client) signRequest(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: RSA private key not configured")
	}

	ts := strconv.FormatInt(c.clock.Now().UnixMilli(), 10)
	message := ts + method + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx statuses to the domain error kinds callers branch
// on: 429 backs off, 5xx retries, 4xx on orders is terminal.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorDTO
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRateLimited, apiErr.Message, apiErr.Code)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s (%s)", domain.ErrNotFound, apiErr.Message, apiErr.Code)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s (%s)", domain.ErrVenueUnavailable, statusCode, apiErr.Message, apiErr.Code)
	case statusCode == http.StatusBadRequest, statusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s (%s)", domain.ErrRejected, apiErr.Message, apiErr.Code)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
