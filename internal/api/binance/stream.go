package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/PaperTrader/models"
)

// Stream implements models.CandleStream over the kline websocket.
type Stream struct {
	baseURL     string
	dialer      *websocket.Dialer
	readTimeout time.Duration
	buffer      int
	logger      zerolog.Logger
}

// NewStream creates a stream. baseURL is e.g. wss://stream.binance.com:9443.
func NewStream(baseURL string) *Stream {
	return &Stream{
		baseURL:     strings.TrimRight(baseURL, "/"),
		dialer:      websocket.DefaultDialer,
		readTimeout: 90 * time.Second,
		buffer:      64,
		logger:      log.With().Str("component", "binance_ws").Logger(),
	}
}

type klineEvent struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Kline  struct {
		OpenTime int64  `json:"t"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

// parseKlineEvent returns the candle and whether the kline is closed.
func parseKlineEvent(data []byte) (models.Candle, bool, error) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.Candle{}, false, fmt.Errorf("decoding kline event: %w", err)
	}
	if ev.Event != "kline" {
		return models.Candle{}, false, nil
	}

	fields := []string{ev.Kline.Open, ev.Kline.High, ev.Kline.Low, ev.Kline.Close, ev.Kline.Volume}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return models.Candle{}, false, fmt.Errorf("parsing kline value %q: %w", f, err)
		}
		values[i] = v
	}

	return models.Candle{
		Symbol:    strings.ToUpper(ev.Symbol),
		Timestamp: time.UnixMilli(ev.Kline.OpenTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, ev.Kline.Closed, nil
}

// Subscribe connects to <symbol>@kline_<interval> and forwards closed candles only. The
// connection is re-established with exponential backoff until ctx is done, then the channel is closed.
func (s *Stream) Subscribe(ctx context.Context, symbol, interval string) (<-chan models.Candle, error) {
	url := fmt.Sprintf("%s/ws/%s@kline_%s", s.baseURL, strings.ToLower(symbol), interval)

	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}

	out := make(chan models.Candle, s.buffer)
	go s.run(ctx, url, symbol, conn, out)
	return out, nil
}

func (s *Stream) run(ctx context.Context, url, symbol string, conn *websocket.Conn, out chan<- models.Candle) {
	defer close(out)
	logger := s.logger.With().Str("symbol", symbol).Logger()

	for {
		err := s.read(ctx, conn, out)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Msg("Kline stream disconnected, reconnecting")

		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 0
		bo.MaxInterval = time.Minute
		err = backoff.RetryNotify(func() error {
			var dialErr error
			conn, _, dialErr = s.dialer.DialContext(ctx, url, nil)
			return dialErr
		}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
			logger.Warn().Err(err).Dur("retry_in", wait).Msg("Reconnect failed")
		})
		if err != nil {
			return
		}
		logger.Info().Msg("Kline stream reconnected")
	}
}

func (s *Stream) read(ctx context.Context, conn *websocket.Conn, out chan<- models.Candle) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		candle, closed, err := parseKlineEvent(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Skipping malformed kline event")
			continue
		}
		if !closed {
			continue
		}

		select {
		case out <- candle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
