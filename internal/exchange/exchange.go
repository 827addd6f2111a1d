// Package exchange defines the exchange client contract and an HTTP
// implementation of it against a Binance-futures-style signed REST API.
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"zonechain-engine/internal/logging"
)

// wireLog is a zerolog sublogger dedicated to raw exchange wire traffic:
// high-volume, low-level request/response tracing that doesn't belong in
// the structured business-event log internal/logging carries.
var wireLog = log.With().Str("component", "exchange-wire").Logger()

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Side is an order side.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Balance is a single asset's futures wallet balance.
type Balance struct {
	Asset     string
	Total     float64
	Available float64
}

// Position is a single open futures position.
type Position struct {
	Symbol string
	Amount float64
}

// ErrKind names exchange failure modes surfaced to HTTP callers and logged
// for the scheduler.
type ErrKind string

const (
	MinimumNotional ErrKind = "MinimumNotional"
	ExchangeError   ErrKind = "ExchangeError"
)

// Error wraps an exchange failure with its kind.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("exchange: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// minimumNotionalUSDT is the floor below which an order-open intent is
// rejected rather than sent to the exchange.
const minimumNotionalUSDT = 20.0

// Client is the exchange collaborator contract the decision mapper and the
// control surface depend on. All methods are fallible.
type Client interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	LotStep(ctx context.Context, symbol string) (float64, error)
	Balance(ctx context.Context, asset string) (Balance, error)
	Order(ctx context.Context, symbol string, side Side, quantity float64, reduceOnly bool) error
	Positions(ctx context.Context) ([]Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	ServerTimeOffset(ctx context.Context) (int64, error)
	CloseAllPositions(ctx context.Context) error
}

// Credentials is the API key pair resolved by the secrets provider.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// HTTPClient implements Client against a Binance-futures-compatible signed
// REST surface.
type HTTPClient struct {
	futuresURL   string
	futuresURLV2 string
	httpClient   *http.Client
	credentials  Credentials
	serverOffset int64
}

// NewHTTPClient builds a futures client against futuresURL using creds for
// request signing. futuresURLV2 is the host serving the /fapi/v2 endpoints
// (balance, position risk); empty means same host as futuresURL.
func NewHTTPClient(futuresURL, futuresURLV2 string, creds Credentials) *HTTPClient {
	if futuresURLV2 == "" {
		futuresURLV2 = futuresURL
	}
	return &HTTPClient{
		futuresURL:   futuresURL,
		futuresURLV2: futuresURLV2,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		credentials:  creds,
	}
}

// sign computes the HMAC-SHA256 query-string signature the exchange
// requires on every trade/account endpoint.
func (c *HTTPClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.credentials.SecretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *HTTPClient) signedRequest(ctx context.Context, method, path string, params url.Values) (*http.Response, error) {
	log := logging.ExchangeContext(path, valuesToMap(params))

	if params == nil {
		params = url.Values{}
	}
	timestamp := time.Now().UnixMilli() + c.serverOffset
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	query := params.Encode()
	params.Set("signature", c.sign(query))

	fullURL := c.baseFor(path) + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, &Error{Kind: ExchangeError, Err: err}
	}
	req.Header.Set("X-MBX-APIKEY", c.credentials.APIKey)

	start := time.Now()
	wireLog.Trace().Str("method", method).Str("path", path).Msg("exchange request dispatched")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("exchange request failed")
		wireLog.Warn().Str("method", method).Str("path", path).Dur("elapsed", time.Since(start)).Err(err).Msg("exchange request failed")
		return nil, &Error{Kind: ExchangeError, Err: err}
	}
	wireLog.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("exchange request completed")
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, &Error{Kind: ExchangeError, Err: fmt.Errorf("exchange returned status %d", resp.StatusCode)}
	}
	return resp, nil
}

// baseFor routes /fapi/v2 endpoints to the configured v2 host.
func (c *HTTPClient) baseFor(path string) string {
	if strings.HasPrefix(path, "/fapi/v2") {
		return c.futuresURLV2
	}
	return c.futuresURL
}

func valuesToMap(v url.Values) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}

// CurrentPrice fetches the mark price for symbol.
func (c *HTTPClient) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := c.futuresURL + "/fapi/v1/ticker/price?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		Price string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	price, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	return price, nil
}

// LotStep fetches the quantity step size for symbol from exchange info.
func (c *HTTPClient) LotStep(ctx context.Context, symbol string) (float64, error) {
	endpoint := c.futuresURL + "/fapi/v1/exchangeInfo"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	for _, s := range body.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				return strconv.ParseFloat(f.StepSize, 64)
			}
		}
	}
	return 0, &Error{Kind: ExchangeError, Err: fmt.Errorf("lot step not found for %s", symbol)}
}

// Balance fetches the futures wallet balance for asset.
func (c *HTTPClient) Balance(ctx context.Context, asset string) (Balance, error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil)
	if err != nil {
		return Balance{}, err
	}
	defer resp.Body.Close()

	var rows []struct {
		Asset            string `json:"asset"`
		Balance          string `json:"balance"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return Balance{}, &Error{Kind: ExchangeError, Err: err}
	}
	for _, row := range rows {
		if row.Asset != asset {
			continue
		}
		total, _ := strconv.ParseFloat(row.Balance, 64)
		available, _ := strconv.ParseFloat(row.AvailableBalance, 64)
		return Balance{Asset: asset, Total: total, Available: available}, nil
	}
	return Balance{}, &Error{Kind: ExchangeError, Err: fmt.Errorf("asset %s not found", asset)}
}

// Order places a market order, rejecting with MinimumNotional if the
// requested quantity's notional value falls under the exchange floor.
func (c *HTTPClient) Order(ctx context.Context, symbol string, side Side, quantity float64, reduceOnly bool) error {
	price, err := c.CurrentPrice(ctx, symbol)
	if err != nil {
		return err
	}
	if notional := quantity * price; notional < minimumNotionalUSDT {
		return &Error{Kind: MinimumNotional, Err: fmt.Errorf("notional %.2f below floor %.2f", notional, minimumNotionalUSDT)}
	}

	params := url.Values{
		"symbol":   {symbol},
		"side":     {string(side)},
		"type":     {"MARKET"},
		"quantity": {strconv.FormatFloat(quantity, 'f', -1, 64)},
	}
	if reduceOnly {
		params.Set("reduceOnly", "true")
	}
	resp, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Positions fetches all non-zero futures positions.
func (c *HTTPClient) Positions(ctx context.Context) ([]Position, error) {
	resp, err := c.signedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rows []struct {
		Symbol      string `json:"symbol"`
		PositionAmt string `json:"positionAmt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &Error{Kind: ExchangeError, Err: err}
	}
	out := make([]Position, 0, len(rows))
	for _, row := range rows {
		amount, err := strconv.ParseFloat(row.PositionAmt, 64)
		if err != nil {
			continue
		}
		if amount == 0 {
			continue
		}
		out = append(out, Position{Symbol: row.Symbol, Amount: amount})
	}
	return out, nil
}

// SetLeverage sets symbol's configured leverage.
func (c *HTTPClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{
		"symbol":   {symbol},
		"leverage": {strconv.Itoa(leverage)},
	}
	resp, err := c.signedRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// ServerTimeOffset measures and caches the drift between local and exchange
// clocks, used to timestamp every subsequent signed request.
func (c *HTTPClient) ServerTimeOffset(ctx context.Context) (int64, error) {
	endpoint := c.futuresURL + "/fapi/v1/time"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	sent := time.Now().UnixMilli()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	defer resp.Body.Close()

	var body struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, &Error{Kind: ExchangeError, Err: err}
	}
	received := time.Now().UnixMilli()
	roundTrip := received - sent
	offset := body.ServerTime - sent - roundTrip/2
	c.serverOffset = offset
	return offset, nil
}

// CloseAllPositions closes every open position with a reduce-only market
// order on the opposite side, matching the decision mapper's "close all"
// intent.
func (c *HTTPClient) CloseAllPositions(ctx context.Context) error {
	positions, err := c.Positions(ctx)
	if err != nil {
		return err
	}
	var errs []string
	for _, pos := range positions {
		side := Sell
		if pos.Amount < 0 {
			side = Buy
		}
		if err := c.Order(ctx, pos.Symbol, side, math.Abs(pos.Amount), true); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", pos.Symbol, err))
		}
	}
	if len(errs) > 0 {
		return &Error{Kind: ExchangeError, Err: errors.New(strings.Join(errs, "; "))}
	}
	return nil
}
