// Package bot drives one runner per symbol: closed candles in, trading decisions out.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/PaperTrader/internal/metrics"
	"github.com/Alias1177/PaperTrader/models"
)

// CandleStore persists market data and serves the warm-up window.
type CandleStore interface {
	StoreCandle(ctx context.Context, c models.Candle) error
	RecentCandles(ctx context.Context, symbol string, limit int) ([]models.Candle, error)
}

// Options configures the runners.
type Options struct {
	Symbols    []string
	Interval   string
	WindowSize int
	MinRows    int
}

// Bot owns the per-symbol runners.
type Bot struct {
	opts     Options
	stream   models.CandleStream
	history  models.CandleClient
	store    CandleStore
	pipeline *Pipeline
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a bot. history and store are optional.
func New(opts Options, stream models.CandleStream, history models.CandleClient, store CandleStore, pipeline *Pipeline) *Bot {
	if opts.WindowSize <= 0 {
		opts.WindowSize = 100
	}
	if opts.MinRows <= 0 {
		opts.MinRows = 30
	}
	return &Bot{
		opts:     opts,
		stream:   stream,
		history:  history,
		store:    store,
		pipeline: pipeline,
		now:      time.Now,
		logger:   log.With().Str("component", "bot").Logger(),
	}
}

// Run starts a runner per symbol and blocks until all of them stop. Symbols stopped by a ledger
// invariant violation are reported in the returned error; the others keep trading.
func (b *Bot) Run(ctx context.Context) error {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		runErrs   []error
		setupErrs []error
	)

	for _, symbol := range b.opts.Symbols {
		window := b.warmUp(ctx, symbol)

		candles, err := b.stream.Subscribe(ctx, symbol, b.opts.Interval)
		if err != nil {
			setupErrs = append(setupErrs, fmt.Errorf("subscribing to %s: %w", symbol, err))
			continue
		}

		wg.Add(1)
		go func(symbol string, window []models.Candle) {
			defer wg.Done()
			if err := b.runSymbol(ctx, symbol, window, candles); err != nil {
				mu.Lock()
				runErrs = append(runErrs, err)
				mu.Unlock()
			}
		}(symbol, window)
	}

	wg.Wait()
	return errors.Join(append(setupErrs, runErrs...)...)
}

func (b *Bot) runSymbol(ctx context.Context, symbol string, window []models.Candle, candles <-chan models.Candle) error {
	logger := b.logger.With().Str("symbol", symbol).Logger()
	logger.Info().Int("warm_rows", len(window)).Msg("Runner started")

	for {
		var (
			candle models.Candle
			ok     bool
		)
		select {
		case <-ctx.Done():
			logger.Info().Msg("Runner stopped")
			return nil
		case candle, ok = <-candles:
			if !ok {
				logger.Info().Msg("Candle stream closed")
				return nil
			}
		}

		metrics.Candles.WithLabelValues(symbol).Inc()
		if b.store != nil {
			if err := b.store.StoreCandle(ctx, candle); err != nil {
				logger.Error().Err(err).Msg("Failed to store candle")
			}
		}

		window = appendCandle(window, candle, b.opts.WindowSize)
		if len(window) < b.opts.MinRows {
			logger.Debug().Int("rows", len(window)).Int("min_rows", b.opts.MinRows).Msg("Warming up")
			continue
		}

		if _, err := b.pipeline.Step(ctx, symbol, window); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Error().Err(err).Msg("Runner halted")
			return fmt.Errorf("%s: %w", symbol, err)
		}
	}
}

// appendCandle adds c to window, replacing a candle with the same open time, and keeps the
// newest size candles.
func appendCandle(window []models.Candle, c models.Candle, size int) []models.Candle {
	if n := len(window); n > 0 {
		last := window[n-1].Timestamp
		if c.Timestamp.Equal(last) {
			window[n-1] = c
			return window
		}
		if c.Timestamp.Before(last) {
			return window
		}
	}
	window = append(window, c)
	if len(window) > size {
		window = append(window[:0], window[len(window)-size:]...)
	}
	return window
}

// warmUp loads the newest WindowSize closed candles from the store, topping up from the REST
// history when the store has fewer.
func (b *Bot) warmUp(ctx context.Context, symbol string) []models.Candle {
	logger := b.logger.With().Str("symbol", symbol).Logger()

	var window []models.Candle
	if b.store != nil {
		stored, err := b.store.RecentCandles(ctx, symbol, b.opts.WindowSize)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to load stored candles")
		} else {
			window = stored
		}
	}
	if b.history == nil || len(window) >= b.opts.WindowSize {
		return window
	}

	fetched, err := b.history.GetCandles(ctx, symbol, b.opts.Interval, b.opts.WindowSize+1)
	if err != nil {
		logger.Warn().Err(err).Msg("Backfill failed, warming up from the live stream")
		return window
	}
	fetched = closedOnly(fetched, b.opts.Interval, b.now())

	storeErrors := 0
	for _, c := range fetched {
		window = appendCandle(window, c, b.opts.WindowSize)
		if b.store == nil {
			continue
		}
		if err := b.store.StoreCandle(ctx, c); err != nil {
			storeErrors++
			logger.Warn().Err(err).Time("candle", c.Timestamp).Msg("Failed to store backfilled candle")
		}
	}
	logger.Info().
		Int("backfilled", len(fetched)).
		Int("store_errors", storeErrors).
		Int("rows", len(window)).
		Msg("Warm-up window loaded")
	return window
}

// closedOnly drops candles whose interval has not ended at now.
func closedOnly(candles []models.Candle, interval string, now time.Time) []models.Candle {
	step, err := models.IntervalDuration(interval)
	if err != nil {
		return candles
	}
	out := candles[:0]
	for _, c := range candles {
		if !c.Timestamp.Add(step).After(now) {
			out = append(out, c)
		}
	}
	return out
}
