// Package forecast asks an external model-serving sidecar for the next-bar return of a feature row.
package forecast

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	platformhttp "github.com/Alias1177/PaperTrader/internal/platform/http"
	"github.com/Alias1177/PaperTrader/models"
)

// Client calls POST <baseURL>/predict.
type Client struct {
	baseURL string
	http    *platformhttp.Client
}

// NewClient creates a forecast client.
func NewClient(baseURL string, httpClient *platformhttp.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// request mirrors models.FeatureRow with unavailable values sent as null.
type request struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Close      *float64  `json:"close"`
	Volume     *float64  `json:"volume"`
	RSI        *float64  `json:"rsi"`
	EMAFast    *float64  `json:"ema_fast"`
	EMASlow    *float64  `json:"ema_slow"`
	MACD       *float64  `json:"macd"`
	MACDSignal *float64  `json:"macd_signal"`
	BBUpper    *float64  `json:"bb_upper"`
	BBMiddle   *float64  `json:"bb_middle"`
	BBLower    *float64  `json:"bb_lower"`
}

type response struct {
	PredictedReturn *float64 `json:"predicted_return"`
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Predict returns the forecast return in percent for row.
func (c *Client) Predict(ctx context.Context, row models.FeatureRow) (float64, error) {
	req := request{
		Symbol:     row.Symbol,
		Timestamp:  row.Timestamp,
		Close:      nullable(row.Close),
		Volume:     nullable(row.Volume),
		RSI:        nullable(row.RSI),
		EMAFast:    nullable(row.EMAFast),
		EMASlow:    nullable(row.EMASlow),
		MACD:       nullable(row.MACD),
		MACDSignal: nullable(row.MACDSignal),
		BBUpper:    nullable(row.BBUpper),
		BBMiddle:   nullable(row.BBMiddle),
		BBLower:    nullable(row.BBLower),
	}

	var resp response
	if err := c.http.PostJSON(ctx, c.baseURL+"/predict", req, &resp); err != nil {
		return math.NaN(), fmt.Errorf("forecast for %s: %w", row.Symbol, err)
	}
	if resp.PredictedReturn == nil {
		return math.NaN(), fmt.Errorf("forecast for %s: response has no predicted_return", row.Symbol)
	}
	return *resp.PredictedReturn, nil
}
