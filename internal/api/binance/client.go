// Package binance reads public kline data from Binance spot: REST for history, websocket for live
// closed candles.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	platformhttp "github.com/Alias1177/PaperTrader/internal/platform/http"
	"github.com/Alias1177/PaperTrader/models"
)

// maxKlinesPerRequest is the exchange's page size limit for /api/v3/klines.
const maxKlinesPerRequest = 1000

// Client implements models.CandleClient over the REST API.
type Client struct {
	baseURL string
	http    *platformhttp.Client
	logger  zerolog.Logger
}

// NewClient creates a REST client. baseURL is e.g. https://api.binance.com.
func NewClient(baseURL string, httpClient *platformhttp.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  log.With().Str("component", "binance").Logger(),
	}
}

// GetCandles returns the latest limit closed-or-forming candles, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > maxKlinesPerRequest {
		limit = maxKlinesPerRequest
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	return c.klines(ctx, symbol, q)
}

// GetHistoricalCandles pages through [from, to) and returns candles oldest first.
func (c *Client) GetHistoricalCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]models.Candle, error) {
	step, err := models.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}

	var all []models.Candle
	start := from
	for start.Before(to) {
		q := url.Values{}
		q.Set("symbol", strings.ToUpper(symbol))
		q.Set("interval", interval)
		q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
		q.Set("endTime", strconv.FormatInt(to.UnixMilli()-1, 10))
		q.Set("limit", strconv.Itoa(maxKlinesPerRequest))

		page, err := c.klines(ctx, symbol, q)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		start = page[len(page)-1].Timestamp.Add(step)

		c.logger.Debug().Str("symbol", symbol).Int("page", len(page)).Int("total", len(all)).Msg("Fetched klines page")
		if len(page) < maxKlinesPerRequest {
			break
		}
	}
	return all, nil
}

func (c *Client) klines(ctx context.Context, symbol string, q url.Values) ([]models.Candle, error) {
	var raw [][]json.RawMessage
	if err := c.http.GetJSON(ctx, c.baseURL+"/api/v3/klines?"+q.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetching klines for %s: %w", symbol, err)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := parseKlineRow(strings.ToUpper(symbol), row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKlineRow decodes [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlineRow(symbol string, row []json.RawMessage) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return models.Candle{}, fmt.Errorf("parsing open time: %w", err)
	}

	values := make([]float64, 5)
	for i := range values {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return models.Candle{}, fmt.Errorf("parsing kline field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("parsing kline field %d: %w", i+1, err)
		}
		values[i] = v
	}

	return models.Candle{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(openTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
