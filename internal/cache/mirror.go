// Package cache mirrors the paper account into Redis for dashboards.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Alias1177/PaperTrader/models"
)

// MaxTrades is how many closed trades the mirror keeps.
const MaxTrades = 500

// Mirror writes account state and closed trades under a key prefix:
//
//	<prefix>:account   hash with balance and updated_at
//	<prefix>:trades    list of trade JSON, newest first, capped at MaxTrades
//	<prefix>:trades    pub/sub channel receiving each closed trade
//	<prefix>:signals   pub/sub channel receiving each executed decision
type Mirror struct {
	client redis.Cmdable
	prefix string
}

// NewMirror creates a mirror over an existing client.
func NewMirror(client redis.Cmdable, prefix string) *Mirror {
	return &Mirror{client: client, prefix: prefix}
}

// Name identifies the mirror in recorder logs.
func (m *Mirror) Name() string { return "redis" }

func (m *Mirror) key(parts ...string) string {
	k := m.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// PersistTrade updates the balance and pushes the trade.
func (m *Mirror) PersistTrade(ctx context.Context, t models.TradeRecord) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding trade %s: %w", t.ID, err)
	}

	if err := m.client.HSet(ctx, m.key("account"),
		"balance", strconv.FormatFloat(t.BalanceAfter, 'f', -1, 64),
		"updated_at", t.ExitTime.UTC().Format(time.RFC3339),
	).Err(); err != nil {
		return fmt.Errorf("updating account: %w", err)
	}

	trades := m.key("trades")
	if err := m.client.LPush(ctx, trades, string(payload)).Err(); err != nil {
		return fmt.Errorf("pushing trade %s: %w", t.ID, err)
	}
	if err := m.client.LTrim(ctx, trades, 0, MaxTrades-1).Err(); err != nil {
		return fmt.Errorf("trimming trades: %w", err)
	}
	if err := m.client.Publish(ctx, trades, string(payload)).Err(); err != nil {
		return fmt.Errorf("publishing trade %s: %w", t.ID, err)
	}
	return nil
}

// PersistSignal publishes an executed decision.
func (m *Mirror) PersistSignal(ctx context.Context, s models.SignalRecord) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding signal: %w", err)
	}
	if err := m.client.Publish(ctx, m.key("signals"), string(payload)).Err(); err != nil {
		return fmt.Errorf("publishing signal for %s: %w", s.Symbol, err)
	}
	return nil
}

// Balance reads the mirrored balance. ok is false when nothing has been mirrored yet.
func (m *Mirror) Balance(ctx context.Context) (balance float64, ok bool, err error) {
	val, err := m.client.HGet(ctx, m.key("account"), "balance").Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading balance: %w", err)
	}
	balance, err = strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parsing balance %q: %w", val, err)
	}
	return balance, true, nil
}

// RecentTrades returns up to n mirrored trades, newest first.
func (m *Mirror) RecentTrades(ctx context.Context, n int64) ([]models.TradeRecord, error) {
	vals, err := m.client.LRange(ctx, m.key("trades"), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading trades: %w", err)
	}
	trades := make([]models.TradeRecord, 0, len(vals))
	for _, v := range vals {
		var t models.TradeRecord
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decoding trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}
