package models

import (
	"context"
	"time"
)

// CandleClient fetches historical candles from a market data provider.
type CandleClient interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetHistoricalCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]Candle, error)
}

// CandleStream delivers closed candles for one symbol until ctx is done.
type CandleStream interface {
	Subscribe(ctx context.Context, symbol, interval string) (<-chan Candle, error)
}
