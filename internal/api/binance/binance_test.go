package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformhttp "github.com/Alias1177/PaperTrader/internal/platform/http"
)

func restClient(url string) *Client {
	return NewClient(url, platformhttp.NewClient(platformhttp.ClientOptions{
		Timeout:         time.Second,
		RequestsPerSec:  100,
		InitialInterval: time.Millisecond,
	}))
}

func klineRow(openMs int64, close float64) string {
	return fmt.Sprintf(`[%d,"1.0","2.0","0.5","%g","10.5",%d,"0",1,"0","0","0"]`, openMs, close, openMs+59999)
}

func TestGetCandles(t *testing.T) {
	t0 := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		fmt.Fprintf(w, "[%s,%s]", klineRow(t0.UnixMilli(), 1.5), klineRow(t0.Add(time.Minute).UnixMilli(), 1.75))
	}))
	defer srv.Close()

	candles, err := restClient(srv.URL).GetCandles(context.Background(), "btcusdt", "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "BTCUSDT", candles[0].Symbol)
	assert.Equal(t, t0, candles[0].Timestamp)
	assert.Equal(t, 1.5, candles[0].Close)
	assert.Equal(t, 10.5, candles[0].Volume)
	assert.Equal(t, 1.75, candles[1].Close)
}

func TestGetHistoricalCandlesPages(t *testing.T) {
	from := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(1500 * time.Minute)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		start, err := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		require.NoError(t, err)
		end, err := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		require.NoError(t, err)

		var rows []string
		for ms := start; ms <= end && len(rows) < maxKlinesPerRequest; ms += time.Minute.Milliseconds() {
			rows = append(rows, klineRow(ms, 1))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	}))
	defer srv.Close()

	candles, err := restClient(srv.URL).GetHistoricalCandles(context.Background(), "BTCUSDT", "1m", from, to)
	require.NoError(t, err)
	require.Len(t, candles, 1500)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, from, candles[0].Timestamp)
	assert.Equal(t, to.Add(-time.Minute), candles[len(candles)-1].Timestamp)
}

func TestGetCandlesMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1710072000000,"abc","2","0.5","1","1"]]`)
	}))
	defer srv.Close()

	_, err := restClient(srv.URL).GetCandles(context.Background(), "BTCUSDT", "1m", 1)
	assert.Error(t, err)
}

func klineEventJSON(openMs int64, close string, closed bool) string {
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"BTCUSDT","k":{"t":%d,"T":%d,"s":"BTCUSDT","i":"1m","o":"1.0","c":"%s","h":"2.0","l":"0.5","v":"3.0","x":%t}}`,
		openMs+60000, openMs, openMs+59999, close, closed)
}

func TestParseKlineEvent(t *testing.T) {
	candle, closed, err := parseKlineEvent([]byte(klineEventJSON(1710072000000, "1.25", true)))
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, 1.25, candle.Close)
	assert.Equal(t, time.UnixMilli(1710072000000).UTC(), candle.Timestamp)

	_, closed, err = parseKlineEvent([]byte(`{"result":null,"id":1}`))
	require.NoError(t, err)
	assert.False(t, closed)

	_, _, err = parseKlineEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestStreamForwardsClosedKlinesOnly(t *testing.T) {
	var conns int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/btcusdt@kline_1m", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if atomic.AddInt32(&conns, 1) == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(klineEventJSON(1710072000000, "1.1", false)))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(klineEventJSON(1710072000000, "1.2", true)))
			return // drop the connection to force a reconnect
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(klineEventJSON(1710072060000, "1.3", true)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := NewStream("ws://" + strings.TrimPrefix(srv.URL, "http://"))
	ch, err := stream.Subscribe(ctx, "BTCUSDT", "1m")
	require.NoError(t, err)

	var got []float64
	timeout := time.After(10 * time.Second)
	for len(got) < 2 {
		select {
		case c := <-ch:
			got = append(got, c.Close)
		case <-timeout:
			t.Fatal("timed out waiting for candles")
		}
	}
	assert.Equal(t, []float64{1.2, 1.3}, got)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestSubscribeDialError(t *testing.T) {
	stream := NewStream("ws://127.0.0.1:1")
	_, err := stream.Subscribe(context.Background(), "BTCUSDT", "1m")
	assert.Error(t, err)
}
