// Package candles fetches ordered candlestick sequences from a
// Binance-style REST surface.
package candles

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"zonechain-engine/internal/logging"
	"zonechain-engine/internal/market"
)

// ErrKind names the failure modes a Source can raise, per the error-handling
// design: these are always per-symbol, per-tick, and never fatal to the
// scheduler.
type ErrKind string

const (
	SourceUnavailable ErrKind = "SourceUnavailable"
	SourceMalformed   ErrKind = "SourceMalformed"
)

// SourceError wraps a candle fetch failure with its kind so callers can
// decide whether to retry next tick without string-matching.
type SourceError struct {
	Kind   ErrKind
	Symbol string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("candles: %s %s: %v", e.Kind, e.Symbol, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Source fetches ordered candlestick sequences for (symbol, interval, limit).
type Source interface {
	Fetch(ctx context.Context, symbol, interval string, limit int) ([]market.Candlestick, error)
}

// HTTPSource is the default Source, talking to a Binance-compatible
// /api/v3/klines endpoint. It decodes the 12-field positional array exactly
// as the exchange emits it; the classifier never sees raw exchange JSON.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource builds a candle source against baseURL (e.g. config's
// binance.base_url), reusing a single client with a 10s timeout.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, symbol, interval string, limit int) ([]market.Candlestick, error) {
	log := logging.Default().WithFields(map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"limit":    limit,
	}).WithComponent("candles")

	endpoint := s.baseURL + "/api/v3/klines?" + url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &SourceError{Kind: SourceUnavailable, Symbol: symbol, Err: err}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("candle fetch transport error")
		return nil, &SourceError{Kind: SourceUnavailable, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SourceError{Kind: SourceUnavailable, Symbol: symbol, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var rows [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &SourceError{Kind: SourceMalformed, Symbol: symbol, Err: err}
	}

	candles := make([]market.Candlestick, 0, len(rows))
	for _, row := range rows {
		c, err := decodeRow(row)
		if err != nil {
			return nil, &SourceError{Kind: SourceMalformed, Symbol: symbol, Err: err}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// decodeRow decodes one exchange kline row: a 12-element positional array of
//
//	[open_time, open, high, low, close, volume, close_time, quote_asset_volume,
//	 number_of_trades, taker_buy_base, taker_buy_quote, ignore]
//
// Numeric string fields arrive as either JSON numbers or JSON strings
// depending on the exchange, so each is unmarshalled leniently.
func decodeRow(row []json.RawMessage) (market.Candlestick, error) {
	if len(row) != 12 {
		return market.Candlestick{}, fmt.Errorf("kline row has %d fields, want 12", len(row))
	}

	openTime, err := decodeInt(row[0])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("open_time: %w", err)
	}
	closeTime, err := decodeInt(row[6])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("close_time: %w", err)
	}
	numTrades, err := decodeInt(row[8])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("number_of_trades: %w", err)
	}

	openPrice, err := decodeString(row[1])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("open_price: %w", err)
	}
	highPrice, err := decodeString(row[2])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("high_price: %w", err)
	}
	lowPrice, err := decodeString(row[3])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("low_price: %w", err)
	}
	closePrice, err := decodeString(row[4])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("close_price: %w", err)
	}
	volume, err := decodeString(row[5])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("volume: %w", err)
	}
	quoteVolume, err := decodeString(row[7])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("quote_asset_volume: %w", err)
	}
	takerBuyBase, err := decodeString(row[9])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("taker_buy_base: %w", err)
	}
	takerBuyQuote, err := decodeString(row[10])
	if err != nil {
		return market.Candlestick{}, fmt.Errorf("taker_buy_quote: %w", err)
	}

	return market.Candlestick{
		OpenTime:         openTime,
		CloseTime:        closeTime,
		OpenPrice:        openPrice,
		HighPrice:        highPrice,
		LowPrice:         lowPrice,
		ClosePrice:       closePrice,
		Volume:           volume,
		QuoteAssetVolume: quoteVolume,
		NumberOfTrades:   numTrades,
		TakerBuyBase:     takerBuyBase,
		TakerBuyQuote:    takerBuyQuote,
	}, nil
}

func decodeInt(raw json.RawMessage) (int64, error) {
	var asInt int64
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return asInt, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strconv.ParseInt(asString, 10, 64)
	}
	return 0, fmt.Errorf("not an int or numeric string: %s", raw)
}

func decodeString(raw json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asFloat float64
	if err := json.Unmarshal(raw, &asFloat); err == nil {
		return strconv.FormatFloat(asFloat, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("not a string or number: %s", raw)
}
